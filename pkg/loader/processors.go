package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/launchkit/pkg/archive"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/instance"
	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/reconcile"
)

// runProfile is the install phase of a Forge-family loader: it unpacks the
// libraries the installer ships and, for modern installers, runs the client
// processors one after another.
func (in *Installer) runProfile(ctx context.Context, inst instance.Instance, layout *instance.Layout, p *InstallProfile, selectJava func() (string, error)) error {
	coord, _, err := InstallerCoordinate(inst.ModLoader.Kind, inst.Version, inst.ModLoader.Version, inst.ModLoader.Branch)
	if err != nil {
		return err
	}
	installerPath, err := descriptor.LocalPath(layout.Libraries(), coord, "")
	if err != nil {
		return err
	}
	a, err := in.Archives.Open(installerPath)
	if err != nil {
		return fmt.Errorf("%w: %v", launcherr.ErrLoaderNotDownloaded, err)
	}
	defer func() { _ = a.Close() }()

	if err := extractEmbedded(a, layout.Libraries()); err != nil {
		return err
	}

	if p.IsLegacy() {
		dest, err := descriptor.LocalPath(layout.Libraries(), p.Install.Path, "")
		if err != nil {
			return err
		}
		if err := a.ExtractFile(p.Install.FilePath, dest); err != nil {
			return fmt.Errorf("extract %s: %w", p.Install.FilePath, err)
		}
		return nil
	}

	scratch, err := os.MkdirTemp(layout.VersionPath(), ".installer-data-")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	gameVersion := p.Minecraft
	if gameVersion == "" {
		gameVersion = inst.Version
	}
	data := map[string]string{
		"SIDE":              "client",
		"MINECRAFT_JAR":     layout.ClientJar(),
		"MINECRAFT_VERSION": gameVersion,
		"ROOT":              layout.GameDir(),
		"INSTALLER":         installerPath,
		"LIBRARY_DIR":       layout.Libraries(),
	}
	for key, entry := range p.Data {
		value, err := resolveDataValue(a, entry.Client, layout.Libraries(), scratch)
		if err != nil {
			return fmt.Errorf("data %s: %w", key, err)
		}
		data[key] = value
	}

	var java string
	for i, proc := range p.Processors {
		if !proc.RunsOnClient() {
			continue
		}
		if java == "" {
			if java, err = selectJava(); err != nil {
				return err
			}
		}
		if err := in.runProcessor(ctx, i, proc, java, layout.Libraries(), data); err != nil {
			return err
		}
	}
	return nil
}

func (in *Installer) runProcessor(ctx context.Context, index int, proc Processor, java, libDir string, data map[string]string) error {
	logger := in.logger().With("processor", index, "jar", proc.Jar)

	jarPath, err := descriptor.LocalPath(libDir, proc.Jar, "")
	if err != nil {
		return &launcherr.ProcessorError{Index: index, Jar: proc.Jar, Err: err}
	}
	mainClass, err := in.jarMainClass(jarPath)
	if err != nil {
		return &launcherr.ProcessorError{Index: index, Jar: proc.Jar, Err: err}
	}

	classpath := make([]string, 0, len(proc.Classpath)+1)
	for _, c := range proc.Classpath {
		path, err := descriptor.LocalPath(libDir, c, "")
		if err != nil {
			return &launcherr.ProcessorError{Index: index, Jar: proc.Jar, MainClass: mainClass, Err: err}
		}
		classpath = append(classpath, path)
	}
	classpath = append(classpath, jarPath)

	args := make([]string, 0, len(proc.Args))
	for _, arg := range proc.Args {
		v, err := expandArgument(arg, libDir, data)
		if err != nil {
			return &launcherr.ProcessorError{Index: index, Jar: proc.Jar, MainClass: mainClass, Err: err}
		}
		args = append(args, v)
	}

	logger.Info("⚙️ running install processor", "main_class", mainClass)
	output, code, err := in.Runner.Run(ctx, java, classpath, mainClass, args)
	if err != nil {
		return &launcherr.ProcessorError{Index: index, Jar: proc.Jar, MainClass: mainClass, ExitCode: code, Output: string(output), Err: err}
	}
	if code != 0 {
		logger.Error("❌ install processor failed", "exit_code", code)
		return &launcherr.ProcessorError{Index: index, Jar: proc.Jar, MainClass: mainClass, ExitCode: code, Output: string(output)}
	}

	if err := verifyOutputs(proc.Outputs, libDir, data, logger); err != nil {
		return &launcherr.ProcessorError{Index: index, Jar: proc.Jar, MainClass: mainClass, Output: string(output), Err: err}
	}
	return nil
}

func (in *Installer) jarMainClass(path string) (string, error) {
	a, err := in.Archives.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = a.Close() }()
	return a.MainClass()
}

// verifyOutputs checks each produced file against its expected sha1.
func verifyOutputs(outputs map[string]string, libDir string, data map[string]string, logger hclog.Logger) error {
	for file, sum := range outputs {
		path, err := expandArgument(file, libDir, data)
		if err != nil {
			return err
		}
		expected, err := expandArgument(sum, libDir, data)
		if err != nil {
			return err
		}
		ok, err := reconcile.VerifyFile(path, "sha1:"+expected)
		if err != nil {
			return fmt.Errorf("verify output %s: %w", path, err)
		}
		if !ok {
			return fmt.Errorf("output %s does not match sha1 %s", path, expected)
		}
		logger.Debug("✅ processor output verified", "path", path)
	}
	return nil
}

// resolveDataValue turns a profile data value into a concrete string:
// [coordinate] is a library path, 'text' a literal and /path an installer
// entry extracted under scratch.
func resolveDataValue(a archive.Archive, value, libDir, scratch string) (string, error) {
	switch {
	case isWrapped(value, '[', ']'):
		return descriptor.LocalPath(libDir, value[1:len(value)-1], "")
	case isWrapped(value, '\'', '\''):
		return value[1 : len(value)-1], nil
	case strings.HasPrefix(value, "/"):
		name := strings.TrimPrefix(value, "/")
		dest, err := archive.SafeJoin(scratch, name)
		if err != nil {
			return "", err
		}
		if err := a.ExtractFile(name, dest); err != nil {
			return "", err
		}
		return dest, nil
	}
	return value, nil
}

// expandArgument resolves a processor argument. A whole-argument
// [coordinate] becomes a library path; {KEY} tokens are replaced from data.
func expandArgument(arg, libDir string, data map[string]string) (string, error) {
	if isWrapped(arg, '[', ']') {
		return descriptor.LocalPath(libDir, arg[1:len(arg)-1], "")
	}
	if isWrapped(arg, '\'', '\'') {
		return arg[1 : len(arg)-1], nil
	}
	var b strings.Builder
	for rest := arg; rest != ""; {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		key := rest[open+1 : open+end]
		value, ok := data[key]
		if !ok {
			return "", fmt.Errorf("unknown processor variable {%s}", key)
		}
		b.WriteString(rest[:open])
		b.WriteString(value)
		rest = rest[open+end+1:]
	}
	return b.String(), nil
}

func isWrapped(s string, lo, hi byte) bool {
	return len(s) >= 2 && s[0] == lo && s[len(s)-1] == hi
}

// extractEmbedded copies the installer's maven/ tree into libDir, leaving
// existing files alone.
func extractEmbedded(a archive.Archive, libDir string) error {
	for _, name := range a.Names() {
		rel, ok := strings.CutPrefix(name, "maven/")
		if !ok || rel == "" {
			continue
		}
		dest, err := archive.SafeJoin(libDir, rel)
		if err != nil {
			return err
		}
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		if err := a.ExtractFile(name, dest); err != nil {
			return fmt.Errorf("extract %s: %w", name, err)
		}
	}
	return nil
}
