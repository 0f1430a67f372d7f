package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/partypuzzle/slicer"
)

type Config struct {
	bind           string
	dataDir        string
	fetchImages    bool
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.dataDir == "" {
		return errors.New("--data-dir must not be empty")
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid session timeout: %s", c.sessionTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// HostConfig configures the headless participant started by "host".
type HostConfig struct {
	difficulty  string
	duration    time.Duration
	image       string
	noMerge     bool
	room        string
	saveSession bool
	server      string
	snapshot    string
	userID      string
	username    string
}

func (h *HostConfig) validate() error {
	if h.server == "" {
		return errors.New("--server is required")
	}
	if h.room == "" {
		return errors.New("--room is required")
	}
	if _, err := slicer.ParseDifficulty(h.difficulty); err != nil {
		return err
	}
	if h.duration < 0 {
		return fmt.Errorf("invalid duration: %s", h.duration)
	}
	return nil
}

// bindEnv lets every flag in fs be set from an environment variable named
// after it, unless it was given on the command line.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func normalizeFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func newEnv(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

func newCmd(cfg *Config) *cobra.Command {
	v := newEnv("PARTYPUZZLE")

	cmd := &cobra.Command{
		Use:           "partypuzzle",
		Short:         "A multiplayer jigsaw puzzle server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(normalizeFlags)

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PARTYPUZZLE_BIND)")
	fs.StringVar(&cfg.dataDir, "data-dir", "sessions", "directory to store single-player sessions in (env: PARTYPUZZLE_DATA_DIR)")
	fs.BoolVar(&cfg.fetchImages, "fetch-images", false, "fetch remote session images for certificate previews (env: PARTYPUZZLE_FETCH_IMAGES)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PARTYPUZZLE_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PARTYPUZZLE_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PARTYPUZZLE_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are closed (env: PARTYPUZZLE_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PARTYPUZZLE_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PARTYPUZZLE_TLS_KEY)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PARTYPUZZLE_VERSION)")

	pfs := cmd.PersistentFlags()
	pfs.SetNormalizeFunc(normalizeFlags)
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PARTYPUZZLE_VERBOSE)")

	bindEnv(v, fs)
	bindEnv(v, pfs)

	cmd.AddCommand(newHostCmd(cfg, &HostConfig{}))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("partypuzzle v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func newHostCmd(cfg *Config, hc *HostConfig) *cobra.Command {
	v := newEnv("PARTYPUZZLE_HOST")

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Join a room as a headless participant and mirror the game.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := hc.validate(); err != nil {
				return err
			}
			return runHost(cmd.Context(), cfg, hc)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(normalizeFlags)

	fs.StringVarP(&hc.difficulty, "difficulty", "d", "normal", "difficulty for a new room: easy, normal or hard (env: PARTYPUZZLE_HOST_DIFFICULTY)")
	fs.DurationVar(&hc.duration, "duration", 0, "leave the room after this long, 0 to stay until interrupted (env: PARTYPUZZLE_HOST_DURATION)")
	fs.StringVarP(&hc.image, "image", "i", "", "picture to set for the room: URL, data URL or file path (env: PARTYPUZZLE_HOST_IMAGE)")
	fs.BoolVar(&hc.noMerge, "no-merge", false, "only snap pieces onto the board, never join neighbors (env: PARTYPUZZLE_HOST_NO_MERGE)")
	fs.StringVarP(&hc.room, "room", "r", "", "room id to join (env: PARTYPUZZLE_HOST_ROOM)")
	fs.BoolVar(&hc.saveSession, "save-session", false, "save the board as a session on the server after every drop (env: PARTYPUZZLE_HOST_SAVE_SESSION)")
	fs.StringVarP(&hc.server, "server", "s", "http://localhost:8080", "server base URL, including any prefix (env: PARTYPUZZLE_HOST_SERVER)")
	fs.StringVar(&hc.snapshot, "snapshot", "", "write the board as PNG to this path on completion and on exit (env: PARTYPUZZLE_HOST_SNAPSHOT)")
	fs.StringVarP(&hc.userID, "user", "u", "", "user id, random if empty (env: PARTYPUZZLE_HOST_USER)")
	fs.StringVar(&hc.username, "username", "", "display name (env: PARTYPUZZLE_HOST_USERNAME)")

	bindEnv(v, fs)

	return cmd
}
