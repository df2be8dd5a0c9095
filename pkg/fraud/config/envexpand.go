package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in raw YAML bytes before
// parsing. Variables with no value in the environment expand to the empty
// string, matching os.ExpandEnv semantics.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
