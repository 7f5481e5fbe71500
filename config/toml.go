package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/creachadair/atomicfile"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't
// exist, and writes the default config file if there is none.
func EnsureRoot(rootDir string) error {
	for _, dir := range []string{rootDir, filepath.Join(rootDir, defaultConfigDir), filepath.Join(rootDir, defaultDataDir)} {
		if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
			return fmt.Errorf("could not create directory %q: %w", dir, err)
		}
	}
	return writeDefaultConfigFileIfNone(rootDir)
}

// ConfigFilePath returns the path of the config file under rootDir.
func ConfigFilePath(rootDir string) string {
	return filepath.Join(rootDir, defaultConfigFilePath)
}

// WriteConfigFile renders config using the template and writes it to
// the config file under rootDir.
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(ConfigFilePath(rootDir))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	return writeFile(path, buffer.Bytes(), 0644)
}

func writeDefaultConfigFileIfNone(rootDir string) error {
	configFilePath := ConfigFilePath(rootDir)
	if _, err := os.Stat(configFilePath); os.IsNotExist(err) {
		return WriteConfigFile(rootDir, DefaultConfig())
	}
	return nil
}

func writeFile(filePath string, contents []byte, mode os.FileMode) error {
	if _, err := atomicfile.WriteAll(filePath, bytes.NewReader(contents), mode); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/tonbridge/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.tonbridge" by default, but could be changed via $TONBRIDGE_HOME env variable
# or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# Output level for logging: debug | info | error
log-level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log-format = "{{ .BaseConfig.LogFormat }}"

# Database backend of the trusted state store: goleveldb | memdb
db-backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db-dir = "{{ js .BaseConfig.DBPath }}"

#######################################################################
###                 Light Client Configuration Options              ###
#######################################################################
[light]

# Name of the network below to follow
network = "{{ .Light.Network }}"

# Seqno of the key block the light client contract was deployed with.
# Used only to initialize an empty trusted store.
genesis-seqno = {{ .Light.GenesisSeqno }}

# Id of the deployed light client instance
state-id = {{ .Light.StateID }}

# Timeout of a single request to the provider
request-timeout = "{{ .Light.RequestTimeout }}"

# Maximum number of key blocks a single sync walks back
max-sync-steps = {{ .Light.MaxSyncSteps }}

# Number of trusted states kept in the store, 0 keeps them all
pruning-size = {{ .Light.PruningSize }}

#######################################################################
###                       Networks                                  ###
#######################################################################
{{ range .Networks }}
[[networks]]
name = "{{ .Name }}"
network-id = {{ .NetworkID }}
http-api-endpoint = "{{ js .HTTPAPIEndpoint }}"
http-api-key = "{{ js .HTTPAPIKey }}"
global-config-url = "{{ js .GlobalConfigURL }}"
{{ range .Liteservers }}
  [[networks.liteservers]]
  ip = {{ .IP }}
  port = {{ .Port }}
  key = "{{ .Key }}"
{{ end }}{{ end }}
#######################################################################
###                 Instrumentation Configuration Options           ###
#######################################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
# Check out the documentation for the list of available metrics.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus-listen-addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`
