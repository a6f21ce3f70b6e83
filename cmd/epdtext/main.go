package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"epdtext/internal/battery"
	"epdtext/internal/config"
	"epdtext/internal/convert"
	"epdtext/internal/epd"
	"epdtext/internal/framebuffer"
	"epdtext/internal/layout"
	appLog "epdtext/internal/log"
	"epdtext/internal/preview"
	"epdtext/internal/refresh"
	"epdtext/internal/schedule"
	"epdtext/internal/termview"
	"epdtext/internal/transport"
	"epdtext/internal/web"
)

// flagConfig holds CLI flag values; set values override the config file.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	renderOnly bool
	dump       bool
	text       string
	serialPort string
}

const dumpDir = "./dump"

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	applyFlags(conf, flags)
	conf.Normalize()
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("epdtext starting", "version", "0.1.0")
	appLog.Info("effective config",
		"mode", conf.Mode,
		"listen", conf.Listen,
		"serial", conf.Serial.Port,
		"rotation", conf.Panel.Rotation,
		"max_chunk", conf.MaxChunk,
		"redraw", conf.Redraw,
		"once", flags.once,
		"render_only", flags.renderOnly,
		"dump", flags.dump,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("epdtext stopped", err)
		os.Exit(1)
	}
	appLog.Info("epdtext exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	renderer, err := newRenderer(conf.Layout)
	if err != nil {
		return err
	}
	rot, err := framebuffer.ParseRotation(conf.Panel.Rotation)
	if err != nil {
		return err
	}

	var (
		panel refresh.Panel
		buf   *framebuffer.Buffer
	)
	if flags.renderOnly {
		panel = termview.New(&termview.Opts{})
		buf = framebuffer.New(epd.EPD2in9v2.Width, epd.EPD2in9v2.Height, rot)
	} else {
		dev, port, err := epd.Open(conf.Panel)
		if err != nil {
			return err
		}
		defer port.Close()
		appLog.Info("panel opened", "dev", dev.String())
		panel = dev
		buf = dev.NewBuffer(rot)
	}

	// HTTP submissions and scheduled redraws share one queue.
	queue := transport.NewQueue(8, conf.MaxChunk)
	src, closeSrc, err := newSource(conf, queue)
	if err != nil {
		return err
	}
	defer closeSrc()

	pw := preview.NewWriter(conf.PreviewPath)
	onFrame := pw.Frame
	if flags.dump {
		onFrame = func(b *framebuffer.Buffer) {
			pw.Frame(b)
			if err := dumpFrame(dumpDir, b); err != nil {
				appLog.Error("dump failed", err, "dir", dumpDir)
			}
		}
	}

	r := refresh.New(panel, src, buf, renderer, refresh.Options{
		Ack:          []byte(conf.Ack),
		PollInterval: time.Duration(conf.PollIntervalMs) * time.Millisecond,
		Metrics: layout.Metrics{
			X0:       conf.Layout.MarginX,
			Y0:       conf.Layout.MarginY,
			Line0Gap: conf.Layout.Line0Gap,
			Pitch:    conf.Layout.Pitch,
		},
		Once:    flags.once,
		OnFrame: onFrame,
	})

	if conf.Redraw != "" && !flags.once {
		sched, err := schedule.New(conf.Redraw, queue)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	if conf.Listen != "" && !flags.once {
		srv := web.NewServer(conf, web.Deps{
			Queue:   queue,
			Status:  r.Status,
			Preview: pw,
			Battery: battery.New(conf.Battery),
		})
		go func() {
			if err := srv.Serve(ctx); err != nil {
				appLog.Error("HTTP server stopped", err)
			}
		}()
	}

	return r.Run(ctx)
}

// applyFlags lets set CLI flags override the config file.
func applyFlags(conf *config.Config, flags flagConfig) {
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.text != "" {
		conf.Mode = config.ModeStatic
		conf.StaticText = flags.text
	}
	if flags.serialPort != "" {
		conf.Serial.Port = flags.serialPort
	}
}

func newRenderer(lc config.LayoutConfig) (*layout.Renderer, error) {
	primary, err := layout.LoadFont(lc.Primary.Face, lc.Primary.Size)
	if err != nil {
		return nil, err
	}
	secondary, err := layout.LoadFont(lc.Secondary.Face, lc.Secondary.Size)
	if err != nil {
		return nil, err
	}
	return layout.NewRenderer(primary, secondary)
}

// newSource builds the input for the configured mode. The queue is always
// part of it so the HTTP API and the scheduler work in both modes.
func newSource(conf *config.Config, queue *transport.Queue) (transport.Source, func(), error) {
	noop := func() {}

	if conf.Mode == config.ModeStatic {
		return transport.Merge(transport.NewStatic(conf.StaticText), queue), noop, nil
	}
	if conf.Serial.Port == "" {
		appLog.Info("serial input disabled")
		return queue, noop, nil
	}

	port, err := transport.OpenSerial(conf.Serial)
	if err != nil {
		return nil, nil, err
	}
	appLog.Info("serial input opened", "port", conf.Serial.Port, "baud", conf.Serial.Baud)
	closeFn := func() {
		if err := port.Close(); err != nil {
			appLog.Error("serial close failed", err)
		}
	}
	return transport.Merge(transport.NewSerial(port, conf.MaxChunk), queue), closeFn, nil
}

// dumpFrame writes the packed panel bytes and a PNG of the frame to dir.
func dumpFrame(dir string, buf *framebuffer.Buffer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "frame.bin"), convert.Pack(buf), 0o644); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "preview.png"))
	if err != nil {
		return err
	}
	if err := preview.Encode(f, buf); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/epdtext/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Display the first payload and exit")
	flag.BoolVar(&cfg.renderOnly, "render-only", false, "Render to the terminal; do not touch display hardware")
	flag.BoolVar(&cfg.dump, "dump", false, "Dump each frame (frame.bin, preview.png) to "+dumpDir)
	flag.StringVar(&cfg.text, "text", "", "Display this text in static mode (\\n separates lines, \\\\ is a backslash)")
	flag.StringVar(&cfg.serialPort, "serial", "", "Serial port to read text from (overrides config if set)")

	flag.Parse()

	cfg.text = unescapeNewlines(cfg.text)
	return cfg
}

// unescapeNewlines turns a literal "\n" typed on the command line into a line
// break and "\\" into a single backslash. Other backslashes are kept as is.
func unescapeNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				out = append(out, '\n')
				i++
				continue
			case '\\':
				out = append(out, '\\')
				i++
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}
