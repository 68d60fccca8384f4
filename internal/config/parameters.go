package config

// ParameterNamespace is the second segment of every parameter path:
// /{env}/eduplatform/{category}/{name}.
const ParameterNamespace = "eduplatform"

// ParameterPath returns the Parameter Store path of key ("database/url")
// in env. An empty key yields the environment prefix.
func ParameterPath(env, key string) string {
	return "/" + env + "/" + ParameterNamespace + "/" + key
}

// PointerVar names the variable that points envVar at a parameter path.
func PointerVar(envVar string) string {
	return envVar + ssmParamSuffix
}
