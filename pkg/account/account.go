// Package account holds the player accounts a game can be launched with,
// the store that persists them and the validators that check a stored
// credential against its issuing service.
package account

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind is the authority that issued an account.
type Kind string

const (
	KindOffline    Kind = "offline"
	KindMicrosoft  Kind = "microsoft"
	KindThirdParty Kind = "3rdparty"
)

// PresetAuthServers are the third-party authentication servers known
// without configuration.
var PresetAuthServers = []string{
	"https://skin.mc.sjtu.cn/api/yggdrasil",
	"https://skin.mualliance.ltd/api/yggdrasil",
	"https://littleskin.cn/api/yggdrasil",
}

// Account is one player profile.
type Account struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	UUID         string `json:"uuid"`
	Kind         Kind   `json:"playerType"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	// AuthServerURL is the yggdrasil root of a third-party account.
	AuthServerURL string `json:"authServerUrl,omitempty"`
}

// OfflineUUID derives the stable UUID of an offline player: a name-based
// SHA-1 UUID of "OfflinePlayer:<name>" in the URL namespace.
func OfflineUUID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("OfflinePlayer:"+name))
}

// NewOffline returns an offline account for name.
func NewOffline(name string) (Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Account{}, fmt.Errorf("offline account needs a name")
	}
	id := OfflineUUID(name)
	return Account{
		ID:          MakeID(KindOffline, id.String(), ""),
		Name:        name,
		UUID:        id.String(),
		Kind:        KindOffline,
		AccessToken: strings.ReplaceAll(uuid.NewString(), "-", ""),
	}, nil
}

// MakeID builds the account id: kind, uuid and, for third-party
// accounts, the auth server.
func MakeID(kind Kind, id, authServer string) string {
	if authServer == "" {
		return string(kind) + ":" + id
	}
	return string(kind) + ":" + id + "@" + authServer
}

// UserType is the value passed to the game as ${user_type}.
func (a Account) UserType() string {
	if a.Kind == KindOffline {
		return "legacy"
	}
	return "msa"
}

// CompactUUID is the UUID without dashes, as the game expects it.
func (a Account) CompactUUID() string {
	return strings.ReplaceAll(a.UUID, "-", "")
}
