// Package daemon assembles the coordinator: persistence, artifact
// library, activity stream, state machine, router, and both transports,
// and runs them until the context ends.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/cortexcore/cortexd/pkg/activity"
	"github.com/cortexcore/cortexd/pkg/ble"
	"github.com/cortexcore/cortexd/pkg/device"
	"github.com/cortexcore/cortexd/pkg/framing"
	"github.com/cortexcore/cortexd/pkg/httpapi"
	"github.com/cortexcore/cortexd/pkg/hw"
	"github.com/cortexcore/cortexd/pkg/proto"
	"github.com/cortexcore/cortexd/pkg/router"
	"github.com/cortexcore/cortexd/pkg/speech"
	"github.com/cortexcore/cortexd/pkg/storage"
	"github.com/cortexcore/cortexd/pkg/store"
)

// Daemon is the assembled coordinator.
type Daemon struct {
	cfg      Config
	log      *slog.Logger
	deviceID string

	store    *store.Store
	library  *storage.Library
	recDir   string
	activity *activity.Logger
	orch     *device.Orchestrator
	router   *router.Router
	api      *httpapi.Server
	link     *ble.Client
	token    string
}

// New builds a Daemon from configuration. Nothing runs until Run.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{cfg: cfg, log: logger}

	id, err := loadOrCreateDeviceID(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	d.deviceID = id

	d.store, err = store.Open(store.Options{Dir: cfg.DBDir(), Logger: logger})
	if err != nil {
		return nil, err
	}

	local, err := storage.NewLocal(cfg.FilesDir())
	if err != nil {
		d.store.Close()
		return nil, fmt.Errorf("daemon: files dir: %w", err)
	}
	var offload storage.FileStore
	if cfg.Offload.Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			d.store.Close()
			return nil, fmt.Errorf("daemon: aws config: %w", err)
		}
		offload = storage.NewS3(s3.NewFromConfig(awsCfg), cfg.Offload.Bucket, cfg.Offload.Prefix)
		logger.Info("recording offload enabled", "bucket", cfg.Offload.Bucket)
	}
	d.library = storage.NewLibrary(local, offload)
	d.recDir = d.library.Path(storage.Recordings, "")

	d.activity, err = activity.New(cfg.LogsDir(), activity.WithOnRotate(func(name string) {
		d.registerLogSegment(name)
	}))
	if err != nil {
		d.store.Close()
		return nil, err
	}

	capture, err := hw.NewExecCapture(hw.ExecCaptureConfig{
		Dir: d.recDir,
		Bin: cfg.Recorder.Bin,
	})
	if err != nil {
		d.store.Close()
		return nil, err
	}

	d.orch = device.New(device.Config{
		Capture:      capture,
		Transcriber:  d.buildTranscriber(),
		Logger:       logger,
		OnTranscript: d.onTranscript,
	})

	d.router = router.New(router.Config{
		Store:    d.store,
		Device:   d.orch,
		Library:  d.library,
		Activity: d.activity,
		Logger:   logger,
	})

	d.token, err = httpapi.LoadOrCreateToken(cfg.TokenPath())
	if err != nil {
		d.store.Close()
		return nil, err
	}
	d.api = httpapi.NewServer(httpapi.Config{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Token:   d.token,
		Router:  d.router,
		Store:   d.store,
		Library: d.library,
		Logger:  logger,
	})

	link, err := d.buildLink()
	if err != nil {
		d.store.Close()
		return nil, err
	}
	d.link = ble.NewClient(ble.Config{
		Link:      link,
		Discovery: d.discoveryLine,
		Logger:    logger,
	})

	return d, nil
}

// Token returns the API bearer token.
func (d *Daemon) Token() string { return d.token }

// Run reconciles state, starts both transports, and blocks until ctx
// ends. Shutdown is orderly: transports first, then the state machine,
// then storage.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Reconcile(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", d.api.Addr())
	if err != nil {
		return fmt.Errorf("daemon: listen: %w", err)
	}
	d.log.Info("http api listening", "addr", ln.Addr().String(), "device", d.deviceID)

	serveErr := make(chan error, 1)
	go func() { serveErr <- d.api.Serve(ctx, ln) }()

	d.link.Start(ctx)
	go d.pumpLink(ctx)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	d.link.Close()
	d.orch.Wait()
	if err := d.activity.Close(); err != nil {
		d.log.Warn("activity close failed", "error", err)
	}
	if err := d.store.Close(); err != nil {
		d.log.Warn("store close failed", "error", err)
	}
	return runErr
}

// pumpLink drives the BLE event stream through the router.
func (d *Daemon) pumpLink(ctx context.Context) {
	for ev := range d.link.Events() {
		switch ev.Kind {
		case ble.EventConnected:
			d.log.Info("ble link up")
		case ble.EventDisconnected:
			d.log.Info("ble link down")
		case ble.EventDecodeError:
			d.log.Warn("ble frame rejected", "error", ev.Err)
		case ble.EventMessage:
			for _, rsp := range d.router.HandleRaw(ctx, ev.Line, proto.TransportBLE) {
				d.sendResponse(ctx, rsp)
			}
		}
	}
}

// sendResponse chunks oversized responses and writes them to the link.
// A send failure means the peer is gone; the row is already durable, so
// the response is simply dropped.
func (d *Daemon) sendResponse(ctx context.Context, rsp string) {
	for _, part := range framing.SplitResponse(rsp, framing.ResponseChunkLen) {
		if err := d.link.Send(ctx, part); err != nil {
			d.log.Warn("ble response dropped", "error", err)
			return
		}
	}
}

// discoveryLine builds the DISCOVER handoff pushed after each subscribe.
func (d *Daemon) discoveryLine() (string, bool) {
	ip, err := localIP()
	if err != nil {
		d.log.Warn("no local ip for discovery", "error", err)
		return "", false
	}
	line, err := proto.Discovery{IP: ip, Port: d.cfg.HTTP.Port, Token: d.token}.Encode()
	if err != nil {
		return "", false
	}
	return line, true
}

// onTranscript persists a finished transcript as a note and registers
// the recording artifact, then offloads it if configured.
func (d *Daemon) onTranscript(ctx context.Context, artifact, text string) error {
	name := strings.TrimPrefix(artifact, d.recDir+"/")

	if strings.TrimSpace(text) != "" {
		id, err := d.store.InsertNote(ctx, &store.Note{
			Content:   text,
			Source:    store.SourceTranscript,
			SessionID: d.router.SessionID(),
		})
		if err != nil {
			return err
		}
		d.log.Info("transcript saved", "note", id, "recording", name)
	}

	size, err := d.library.Size(ctx, storage.Recordings, name)
	if err != nil {
		return fmt.Errorf("daemon: stat recording: %w", err)
	}
	if err := d.store.InsertFile(ctx, &store.FileRecord{
		Name:     name,
		Category: storage.Recordings.String(),
		Size:     size,
	}); err != nil {
		return err
	}

	if err := d.library.Offload(ctx, storage.Recordings, name); err != nil {
		d.log.Warn("recording offload failed", "name", name, "error", err)
	}
	return nil
}

// registerLogSegment records a rotated activity segment as a logs
// artifact so it shows up in the files API.
func (d *Daemon) registerLogSegment(name string) {
	ctx := context.Background()
	size, err := d.library.Size(ctx, storage.Logs, name)
	if err != nil {
		d.log.Warn("log segment stat failed", "name", name, "error", err)
		return
	}
	if err := d.store.InsertFile(ctx, &store.FileRecord{
		Name:     name,
		Category: storage.Logs.String(),
		Size:     size,
	}); err != nil {
		d.log.Warn("log segment registration failed", "name", name, "error", err)
	}
}

func (d *Daemon) buildTranscriber() speech.Transcriber {
	key := os.Getenv("CORTEXD_OPENAI_KEY")
	if key == "" {
		key = d.cfg.Speech.APIKey
	}
	if key == "" {
		d.log.Warn("no transcription key configured; transcripts disabled")
		return speech.TranscribeFunc(func(context.Context, string) (string, error) {
			return "", nil
		})
	}
	var opts []speech.WhisperOption
	if d.cfg.Speech.BaseURL != "" {
		opts = append(opts, speech.WithBaseURL(d.cfg.Speech.BaseURL))
	}
	if d.cfg.Speech.Model != "" {
		opts = append(opts, speech.WithModel(d.cfg.Speech.Model))
	}
	return speech.NewWhisper(key, opts...)
}

func (d *Daemon) buildLink() (ble.Link, error) {
	if d.cfg.BLE.BridgeURL != "" {
		d.log.Info("using websocket bridge link", "url", d.cfg.BLE.BridgeURL)
		return &ble.WSLink{URL: d.cfg.BLE.BridgeURL}, nil
	}
	return ble.NewCentral(ble.CentralConfig{
		DeviceName:  d.cfg.BLE.DeviceName,
		ServiceUUID: d.cfg.BLE.ServiceUUID,
		TXCharUUID:  d.cfg.BLE.TXCharUUID,
		RXCharUUID:  d.cfg.BLE.RXCharUUID,
		Logger:      d.log,
	})
}

// loadOrCreateDeviceID persists a stable identifier for this unit.
func loadOrCreateDeviceID(dataDir string) (string, error) {
	path := dataDir + "/device-id"
	b, err := os.ReadFile(path)
	if err == nil && len(strings.TrimSpace(string(b))) > 0 {
		return strings.TrimSpace(string(b)), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("daemon: read device id: %w", err)
	}
	id := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("daemon: data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("daemon: write device id: %w", err)
	}
	return id, nil
}

// localIP finds the outbound interface address without sending traffic.
func localIP() (string, error) {
	conn, err := net.Dial("udp", "192.0.2.1:9")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
