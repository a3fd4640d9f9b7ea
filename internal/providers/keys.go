package providers

import (
	"os"
	"strings"
)

// resolveKey looks up SCHOLARAG_<PROVIDER>_KEY_<ALIAS> first so several
// keys per provider can coexist, then the provider's conventional
// <PROVIDER>_API_KEY.
func resolveKey(provider, alias string) string {
	upper := strings.ToUpper(provider)
	if alias != "" {
		if k := os.Getenv("SCHOLARAG_" + upper + "_KEY_" + strings.ToUpper(alias)); k != "" {
			return k
		}
	}
	return os.Getenv(upper + "_API_KEY")
}
