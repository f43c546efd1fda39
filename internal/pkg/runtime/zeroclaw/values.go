package zeroclaw

import (
	"strconv"
	"strings"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/template"
)

const foundingBadge = "- Status: Penjual Pendiri Nemu"

var tomlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// TOMLString escapes value for use inside a double-quoted TOML string.
func TOMLString(value string) string {
	return tomlEscaper.Replace(value)
}

func tomlFloat(value float64) string {
	formatted := strconv.FormatFloat(value, 'f', -1, 64)
	if !strings.ContainsAny(formatted, ".eE") {
		formatted += ".0"
	}
	return formatted
}

// PersonaValues maps seller identity onto the persona and heartbeat placeholders.
// Optional profile fields map to empty strings so templates render without them.
func PersonaValues(profile agent.SellerProfile, settings Settings) template.Values {
	badge := ""
	if profile.IsFoundingSeller {
		badge = foundingBadge
	}

	return template.Values{
		"SELLER_ID":          string(profile.SellerID),
		"STORE_NAME":         profile.StoreName,
		"STORE_SLUG":         profile.StoreSlug,
		"CATEGORY":           profile.Category,
		"DESCRIPTION":        profile.Description,
		"INVITE_CODE":        profile.InviteCode,
		"FOUNDING_BADGE":     badge,
		"WALLET_ADDRESS":     profile.WalletAddress,
		"PAYMENT_PROVIDER":   profile.PaymentProvider,
		"PLATFORM_URL":       strings.TrimRight(settings.PlatformURL, "/"),
		"HEARTBEAT_INTERVAL": strconv.Itoa(settings.HeartbeatIntervalMinutes),
	}
}

// ConfigValues maps runtime settings onto the config.toml and storage placeholders.
// String values are escaped for TOML; numbers and booleans are written bare.
func ConfigValues(settings Settings, port int, workspaceDir string) template.Values {
	return template.Values{
		"API_KEY":             TOMLString(settings.APIKey),
		"DEFAULT_PROVIDER":    TOMLString(settings.Provider),
		"DEFAULT_MODEL":       TOMLString(settings.Model),
		"DEFAULT_TEMPERATURE": tomlFloat(settings.Temperature),
		"WORKSPACE_DIR":       TOMLString(workspaceDir),
		"GATEWAY_HOST":        TOMLString(settings.GatewayHost),
		"GATEWAY_PORT":        strconv.Itoa(port),
		"MEMORY_BACKEND":      settings.MemoryBackend(),
		"HEARTBEAT_ENABLED":   strconv.FormatBool(!settings.HeartbeatDisabled),
		"HEARTBEAT_INTERVAL":  strconv.Itoa(settings.HeartbeatIntervalMinutes),
		"AUTONOMY_LEVEL":      TOMLString(settings.AutonomyLevel),
		"RUNTIME_KIND":        TOMLString(settings.RuntimeKind),
		"DATABASE_URL":        TOMLString(settings.DatabaseURL),
	}
}
