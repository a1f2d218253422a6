// Command vdbridged is the guest-side daemon: the message-routing and
// session-arbitration core (pkg/bridge) wired to its external
// collaborators (pkg/hostlink, pkg/agentlink, pkg/tablet, pkg/sessioninfo,
// pkg/confsync, pkg/introspect) behind a getopt-style CLI, matching
// spec.md §6's flag surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/lattice-vm/vdbridged/pkg/bridge"
	vdconfig "github.com/lattice-vm/vdbridged/pkg/config"
	"github.com/lattice-vm/vdbridged/pkg/confsync"
	"github.com/lattice-vm/vdbridged/pkg/introspect"
	"github.com/lattice-vm/vdbridged/pkg/sessioninfo"
)

const (
	defaultHostPort    = "/dev/virtio-ports/com.redhat.spice.0"
	defaultAgentSocket = "/run/vdbridged/agent.sock"
	defaultUinput      = "/dev/uinput"
	defaultPidfile     = "/run/vdbridged.pid"
	defaultConfPath    = "/run/vdbridged/display-config.json"
)

// reexecEnv is set in the daemonized child so it knows not to fork again.
const reexecEnv = "VDBRIDGED_DAEMON_CHILD"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("vdbridged", flag.ContinueOnError)

	help := fs.Bool("h", false, "show this help message")
	debugCount := countingFlag(fs, "d", "increase debug verbosity (repeatable)")
	hostPort := fs.String("s", "", "virtio port device path")
	agentSocket := fs.String("S", "", "agent socket path")
	uinputPath := fs.String("u", "", "uinput device path")
	fakeUinput := fs.Bool("f", false, "use a fake uinput device (no ioctls)")
	foreground := fs.Bool("x", false, "stay in the foreground; do not daemonize")
	singleShot := fs.Bool("o", false, "exit cleanly after one host session")
	disableSession := fs.Bool("X", false, "disable session-info integration")
	logFile := fs.String("l", "", "write structured logs to this file instead of stderr")
	introspectAddr := fs.String("i", "", "loopback address for the introspection status feed (empty disables it)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n\n", fs.Name())
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *help {
		fs.Usage()
		return 0
	}

	env, err := vdconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vdbridged: loading environment config: %v\n", err)
		return 1
	}

	cfg := resolveConfig(fs, env, configFlags{
		hostPort:       hostPort,
		agentSocket:    agentSocket,
		uinputPath:     uinputPath,
		logFile:        logFile,
		introspectAddr: introspectAddr,
		debugCount:     debugCount,
		fakeUinput:     fakeUinput,
		singleShot:     singleShot,
		disableSession: disableSession,
	})

	if !*foreground && os.Getenv(reexecEnv) == "" {
		if err := daemonize(args); err != nil {
			fmt.Fprintf(os.Stderr, "vdbridged: daemonize: %v\n", err)
			return 1
		}
		return 0
	}

	logOut, closeLog, err := openLogOutput(cfg.logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vdbridged: opening log file: %v\n", err)
		return 1
	}
	defer closeLog()

	log := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: debugLevelToSlog(cfg.debugLevel),
	}))
	slog.SetDefault(log)

	if !*foreground {
		if err := writePidfile(defaultPidfile); err != nil {
			log.Error("writing pidfile", "err", err)
			return 1
		}
		defer os.Remove(defaultPidfile)
	}

	var provider sessioninfo.Provider
	if !cfg.disableSession {
		logind, err := sessioninfo.NewLogind()
		if err != nil {
			log.Warn("logind session-info unavailable; continuing without session tracking", "err", err)
		} else {
			provider = logind
			defer logind.Close()
		}
	}

	var hub *introspect.Hub
	if cfg.introspectAddr != "" {
		hub = introspect.NewHub(log)
		go func() {
			if err := introspect.Serve(cfg.introspectAddr, hub); err != nil {
				log.Warn("introspection server exited", "err", err)
			}
		}()
	}

	core := bridge.New(bridge.Config{
		HostPortPath:   cfg.hostPort,
		AgentSocket:    cfg.agentSocket,
		UinputPath:     cfg.uinputPath,
		FakeUinput:     cfg.fakeUinput,
		SingleShot:     cfg.singleShot,
		DisableSession: cfg.disableSession,
		ConfPath:       defaultConfPath,
		Log:            log,
		Introspect:     hub,
	}, confsync.NewFileWriter(defaultConfPath), provider)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := core.Run(ctx); err != nil {
		log.Error("bridge core exited with error", "err", err)
		return 1
	}
	return 0
}

// configFlags bundles the flag.Value pointers resolveConfig needs to
// tell "explicitly set on the command line" apart from "left at its
// zero value," so env-var overrides only apply where the flag wasn't
// given.
type configFlags struct {
	hostPort, agentSocket, uinputPath, logFile, introspectAddr *string
	debugCount                                                 *int
	fakeUinput, singleShot, disableSession                     *bool
}

type resolvedConfig struct {
	hostPort, agentSocket, uinputPath, logFile, introspectAddr string
	debugLevel                                                 int
	fakeUinput, singleShot, disableSession                     bool
}

// resolveConfig applies spec.md §6 / SPEC_FULL.md §2's precedence: flags
// win over environment variables, which win over built-in defaults.
func resolveConfig(fs *flag.FlagSet, env vdconfig.EnvConfig, cf configFlags) resolvedConfig {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	rc := resolvedConfig{
		hostPort:       defaultHostPort,
		agentSocket:    defaultAgentSocket,
		uinputPath:     defaultUinput,
		fakeUinput:     *cf.fakeUinput,
		singleShot:     *cf.singleShot,
		disableSession: *cf.disableSession,
		debugLevel:     *cf.debugCount,
	}

	if env.HostPort != "" {
		rc.hostPort = env.HostPort
	}
	if env.AgentSocket != "" {
		rc.agentSocket = env.AgentSocket
	}
	if env.UinputDevice != "" {
		rc.uinputPath = env.UinputDevice
	}
	if env.LogFile != "" {
		rc.logFile = env.LogFile
	}
	if env.IntrospectAddr != "" {
		rc.introspectAddr = env.IntrospectAddr
	}
	if !set["d"] && env.DebugLevel > 0 {
		rc.debugLevel = env.DebugLevel
	}
	if !set["f"] && env.FakeUinput {
		rc.fakeUinput = true
	}
	if !set["o"] && env.SingleShot {
		rc.singleShot = true
	}
	if !set["X"] && env.DisableSession {
		rc.disableSession = true
	}

	if set["s"] {
		rc.hostPort = *cf.hostPort
	}
	if set["S"] {
		rc.agentSocket = *cf.agentSocket
	}
	if set["u"] {
		rc.uinputPath = *cf.uinputPath
	}
	if set["l"] {
		rc.logFile = *cf.logFile
	}
	if set["i"] {
		rc.introspectAddr = *cf.introspectAddr
	}

	return rc
}

// countingFlag registers a repeatable boolean-style flag (-d -d -d) that
// accumulates into an int, the way the original getopt loop counts -d
// occurrences for debug verbosity.
func countingFlag(fs *flag.FlagSet, name, usage string) *int {
	n := new(int)
	fs.Var((*countValue)(n), name, usage)
	return n
}

type countValue int

func (c *countValue) String() string {
	if c == nil {
		return "0"
	}
	return strconv.Itoa(int(*c))
}

func (c *countValue) Set(string) error {
	*c++
	return nil
}

func (c *countValue) IsBoolFlag() bool { return true }

func debugLevelToSlog(level int) slog.Level {
	switch {
	case level <= 0:
		return slog.LevelWarn
	case level == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func openLogOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// daemonize matches the original_source vdagentd's fork/setsid/pidfile
// contract: since Go cannot safely fork a multi-threaded process, it
// re-execs itself into a detached session leader and exits the parent
// once the child is launched. The child writes its own pidfile (it knows
// its own final pid, unlike the parent).
func daemonize(args []string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}

	cmd := exec.Command(self, args...)
	cmd.Env = append(os.Environ(), reexecEnv+"=1")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting daemon child: %w", err)
	}
	return nil
}

func writePidfile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}
