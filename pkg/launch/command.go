package launch

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/provide-io/launchkit/pkg/account"
	"github.com/provide-io/launchkit/pkg/config"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/instance"
	"github.com/provide-io/launchkit/pkg/shell"
)

// QuickPlay joins a world or server straight after start.
type QuickPlay struct {
	Singleplayer string
	Multiplayer  string
	Realms       string
}

func (q QuickPlay) empty() bool {
	return q.Singleplayer == "" && q.Multiplayer == "" && q.Realms == ""
}

// Params is everything the command line is built from.
type Params struct {
	Descriptor *descriptor.Descriptor
	Instance   instance.Instance
	Layout     *instance.Layout
	Game       config.GameConfig
	Java       string
	Account    account.Account
	AuthServer *account.AuthServer
	// AuthlibInjector is the agent jar third-party accounts need.
	AuthlibInjector string
	Platform        descriptor.Platform
	QuickPlay       QuickPlay
	LauncherName    string
	LauncherVersion string
	// TotalMemoryMiB sizes the heap when automatic allocation is on.
	TotalMemoryMiB int
}

// Command is an assembled game command line.
type Command struct {
	Java string
	// Args follow the java executable.
	Args      []string
	Classpath string
	Env       []string
}

// Argv returns the java executable followed by Args.
func (c Command) Argv() []string {
	return append([]string{c.Java}, c.Args...)
}

// legacyJVMArgs stand in for the jvm template of descriptors that only
// carry minecraftArguments.
var legacyJVMArgs = []descriptor.ArgumentItem{
	{Value: []string{"-XstartOnFirstThread"}, Rules: []descriptor.Rule{{Action: "allow", OS: &descriptor.OSRule{Name: "osx"}}}},
	{Value: []string{"-XX:HeapDumpPath=MojangTricksIntelFriendlyDimensionFormat.heapdump"}, Rules: []descriptor.Rule{{Action: "allow", OS: &descriptor.OSRule{Name: "windows"}}}},
	{Value: []string{"-Xss1M"}, Rules: []descriptor.Rule{{Action: "allow", OS: &descriptor.OSRule{Arch: "x86"}}}},
	descriptor.Plain("-Djava.library.path=${natives_directory}"),
	descriptor.Plain("-Dminecraft.launcher.brand=${launcher_name}"),
	descriptor.Plain("-Dminecraft.launcher.version=${launcher_version}"),
	descriptor.Plain("-cp"),
	descriptor.Plain("${classpath}"),
}

// BuildCommand assembles the java command line for p.
func BuildCommand(p Params) (Command, error) {
	d := p.Descriptor
	if d == nil || d.MainClass == "" {
		return Command{}, fmt.Errorf("descriptor has no main class")
	}

	classpath := append(d.Classpath(p.Layout.Libraries(), p.Platform), p.Layout.ClientJar())
	cp := strings.Join(classpath, string(filepath.ListSeparator))
	vars := placeholders(p, cp)
	features := descriptor.Features{
		"has_custom_resolution":      !p.Game.GameWindow.Resolution.Fullscreen,
		"has_quick_plays_support":    !p.QuickPlay.empty(),
		"is_quick_play_singleplayer": p.QuickPlay.Singleplayer != "",
		"is_quick_play_multiplayer":  p.QuickPlay.Multiplayer != "",
		"is_quick_play_realms":       p.QuickPlay.Realms != "",
		"is_demo_user":               false,
	}

	var args []string
	args = append(args, memoryArgs(p)...)

	advanced := p.Game.Advanced
	if advanced.Enabled && advanced.JVM.Args != "" {
		extra, err := shell.Split(advanced.JVM.Args)
		if err != nil {
			return Command{}, fmt.Errorf("jvm args: %w", err)
		}
		args = append(args, extra...)
	}
	if p.Account.Kind == account.KindThirdParty && p.AuthServer != nil && p.AuthlibInjector != "" {
		args = append(args,
			"-javaagent:"+p.AuthlibInjector+"="+p.AuthServer.URL,
			"-Dauthlibinjector.side=client",
			"-Dauthlibinjector.yggdrasil.prefetched="+base64.StdEncoding.EncodeToString(p.AuthServer.Raw))
	}

	jvm := legacyJVMArgs
	if d.Arguments != nil && len(d.Arguments.JVM) > 0 {
		jvm = d.Arguments.JVM
	}
	if advanced.Enabled && advanced.Workaround.NoJVMArgs {
		jvm = []descriptor.ArgumentItem{descriptor.Plain("-cp"), descriptor.Plain("${classpath}")}
	}
	args = append(args, expandItems(jvm, vars, p.Platform, features)...)

	args = append(args, d.MainClass)

	if d.Arguments != nil && len(d.Arguments.Game) > 0 {
		args = append(args, expandItems(d.Arguments.Game, vars, p.Platform, features)...)
	} else if d.MinecraftArguments != "" {
		for _, word := range strings.Fields(d.MinecraftArguments) {
			args = append(args, expand(word, vars))
		}
		if !p.Game.GameWindow.Resolution.Fullscreen {
			args = append(args, "--width", vars["resolution_width"], "--height", vars["resolution_height"])
		}
	}
	if p.Game.GameWindow.Resolution.Fullscreen {
		args = append(args, "--fullscreen")
	}
	if (d.Arguments == nil || len(d.Arguments.Game) == 0) && p.QuickPlay.Multiplayer != "" {
		host, port, _ := strings.Cut(p.QuickPlay.Multiplayer, ":")
		if port == "" {
			port = "25565"
		}
		args = append(args, "--server", host, "--port", port)
	}
	if advanced.Enabled && advanced.CustomCommands.MinecraftArgument != "" {
		extra, err := shell.Split(advanced.CustomCommands.MinecraftArgument)
		if err != nil {
			return Command{}, fmt.Errorf("game args: %w", err)
		}
		args = append(args, extra...)
	}

	env := []string{"CLASSPATH=" + cp}
	if advanced.Enabled && advanced.JVM.EnvironmentVariable != "" {
		extra, err := parseEnvAssignments(advanced.JVM.EnvironmentVariable)
		if err != nil {
			return Command{}, err
		}
		for _, kv := range extra {
			k, v, _ := strings.Cut(kv, "=")
			env = setEnv(env, k, v)
		}
	}
	return Command{Java: p.Java, Args: args, Classpath: cp, Env: env}, nil
}

func placeholders(p Params, classpath string) map[string]string {
	d := p.Descriptor
	assetIndex := d.Assets
	if d.AssetIndex != nil && d.AssetIndex.ID != "" {
		assetIndex = d.AssetIndex.ID
	}
	assetsRoot := p.Layout.Assets()
	gameAssets := assetsRoot
	if assetIndex == "legacy" || assetIndex == "pre-1.6" {
		gameAssets = filepath.Join(assetsRoot, "virtual", "legacy")
	}
	res := p.Game.GameWindow.Resolution
	versionType := p.LauncherName
	if p.Game.GameWindow.CustomInfo != "" {
		versionType = p.Game.GameWindow.CustomInfo
	}

	return map[string]string{
		"auth_player_name":      p.Account.Name,
		"auth_uuid":             p.Account.CompactUUID(),
		"auth_access_token":     p.Account.AccessToken,
		"auth_session":          p.Account.AccessToken,
		"auth_xuid":             "",
		"clientid":              "",
		"user_type":             p.Account.UserType(),
		"user_properties":       "{}",
		"version_name":          p.Instance.Name,
		"version_type":          versionType,
		"game_directory":        p.Layout.Root(),
		"assets_root":           assetsRoot,
		"game_assets":           gameAssets,
		"assets_index_name":     assetIndex,
		"natives_directory":     p.Layout.Natives(),
		"library_directory":     p.Layout.Libraries(),
		"classpath":             classpath,
		"classpath_separator":   string(filepath.ListSeparator),
		"launcher_name":         p.LauncherName,
		"launcher_version":      p.LauncherVersion,
		"resolution_width":      strconv.Itoa(res.Width),
		"resolution_height":     strconv.Itoa(res.Height),
		"quickPlayPath":         filepath.Join(p.Layout.Root(), "quickPlay", "log.json"),
		"quickPlaySingleplayer": p.QuickPlay.Singleplayer,
		"quickPlayMultiplayer":  p.QuickPlay.Multiplayer,
		"quickPlayRealms":       p.QuickPlay.Realms,
	}
}

// expandItems keeps the items whose rules allow them and expands their
// placeholders.
func expandItems(items []descriptor.ArgumentItem, vars map[string]string, p descriptor.Platform, f descriptor.Features) []string {
	var out []string
	for _, item := range items {
		if !descriptor.Allowed(item.Rules, p, f) {
			continue
		}
		for _, v := range item.Value {
			out = append(out, expand(v, vars))
		}
	}
	return out
}

// expand replaces ${name} tokens with vars. Unknown names are kept.
func expand(s string, vars map[string]string) string {
	var b strings.Builder
	for {
		open := strings.Index(s, "${")
		if open < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		name := s[open+2 : open+end]
		b.WriteString(s[:open])
		if v, ok := vars[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[open : open+end+1])
		}
		s = s[open+end+1:]
	}
}

// memoryArgs returns -Xmx and, for automatic allocation, a heap sized to a
// quarter of total memory between 1 and 8 GiB.
func memoryArgs(p Params) []string {
	perf := p.Game.Performance
	mib := perf.MaxMemAllocation
	if perf.AutoMemAllocation {
		mib = min(max(p.TotalMemoryMiB/4, 1024), 8192)
	}
	if mib <= 0 {
		return nil
	}
	return []string{fmt.Sprintf("-Xmx%dm", mib), "-Xmn256m"}
}

// FullCommand renders env and argv as a script a shell can run again.
func FullCommand(env, argv []string, dir string) string {
	windows := runtime.GOOS == "windows"
	script := shell.Script(argv, dir, windows)
	header, body, _ := strings.Cut(script, "\n")
	var b strings.Builder
	b.WriteString(header + "\n")
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		if windows {
			b.WriteString("set " + shell.QuoteBatch(k+"="+v) + "\r\n")
		} else {
			b.WriteString("export " + k + "=" + shell.Quote(v) + "\n")
		}
	}
	b.WriteString(body)
	return b.String()
}
