package interceptors

import (
	"fmt"
	"log/slog"
)

// GetProfileConfig looks up a named profile from an interceptor's config.
// interceptorsCfg is typically deps.GetDeps().Config.HTTP.Interceptors.
func GetProfileConfig(interceptorsCfg map[string]map[string]any, interceptorName, profileName string) (map[string]any, error) {
	interceptorCfg, ok := interceptorsCfg[interceptorName]
	if !ok {
		return nil, fmt.Errorf("no %s interceptor configured, cannot find profile %q", interceptorName, profileName)
	}
	profiles, ok := interceptorCfg["profiles"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("no %s profiles configured, cannot find profile %q", interceptorName, profileName)
	}
	profileRaw, ok := profiles[profileName]
	if !ok {
		return nil, fmt.Errorf("%s profile %q not found", interceptorName, profileName)
	}
	profileConfig, ok := profileRaw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s profile %q is not a map", interceptorName, profileName)
	}
	return profileConfig, nil
}

// Build resolves profile and constructs the named interceptor. An empty
// profile yields a nil middleware and no error.
func Build(interceptorsCfg map[string]map[string]any, name, profile string, log *slog.Logger) (Middleware, error) {
	if profile == "" {
		return nil, nil
	}
	conf, err := GetProfileConfig(interceptorsCfg, name, profile)
	if err != nil {
		return nil, err
	}
	newInterceptor, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("%s interceptor not registered (registered: %v)", name, Names())
	}
	return newInterceptor(conf, log)
}
