package ws

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/saker-ai/speech-uplink/internal/config"
	"github.com/saker-ai/speech-uplink/internal/protocol"
	"github.com/saker-ai/speech-uplink/internal/session"
	"github.com/saker-ai/speech-uplink/internal/session/fsm"
	"github.com/saker-ai/speech-uplink/pkg/audio"
	"github.com/saker-ai/speech-uplink/pkg/uplink"
)

type commandHandler func(protocol.ClientCommand)

func (c *connection) dispatch(cmd protocol.ClientCommand) {
	handlers := map[string]commandHandler{
		protocol.CommandStart:      c.onStart,
		protocol.CommandAudioBlock: c.onAudioBlock,
		protocol.CommandStop:       c.onStop,
		protocol.CommandHeartbeat:  c.onNoop,
	}

	if handler, ok := handlers[cmd.Type]; ok {
		handler(cmd)
		return
	}
	c.logger.Debug("ws unknown command type",
		zap.String("connection_id", c.id),
		zap.String("type", cmd.Type),
	)
}

func (c *connection) onStart(cmd protocol.ClientCommand) {
	if c.capture != nil && c.capture.State() == fsm.StateCapturing {
		c.sendError("capture session already started")
		return
	}

	capture, err := c.captureConfig(cmd)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	pipelineCfg := capture.PipelineConfig(cmd.SourceSampleRate).WithDefaults()
	if err := pipelineCfg.Validate(); err != nil {
		c.sendError(err.Error())
		return
	}

	id := newSessionID()
	sinks, recordingID, err := c.buildSinks(id, pipelineCfg)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	sess, err := session.New(session.Options{
		ID:         id,
		Pipeline:   pipelineCfg,
		QueueDepth: c.handler.config.Capture.QueueDepth,
		Sinks:      sinks,
		Metrics:    c.handler.metrics,
		Logger:     c.logger,
	})
	if err != nil {
		closeSinks(sinks)
		c.sendError(err.Error())
		return
	}
	c.handler.registry.Add(sess)
	c.capture = sess
	c.group.Go(func() error {
		if err := sess.Run(c.ctx); err != nil && !errors.Is(err, c.ctx.Err()) {
			c.logger.Warn("capture consumer failed", zap.String("session_id", sess.ID()), zap.Error(err))
		}
		return nil
	})

	c.sendJSON(protocol.ServerEvent{
		Type:                protocol.EventSessionStarted,
		SessionID:           sess.ID(),
		SourceSampleRate:    pipelineCfg.SourceSampleRate,
		TargetSampleRate:    pipelineCfg.TargetSampleRate,
		BufferCapacity:      pipelineCfg.BufferCapacity,
		FlushPartialOnClose: pipelineCfg.FlushPartialOnClose,
		Resampler:           pipelineCfg.Resampler,
		RecordingID:         recordingID,
	})
}

func (c *connection) captureConfig(cmd protocol.ClientCommand) (appconfig.CaptureConfig, error) {
	cfg := c.handler.config
	capture := cfg.Capture
	if cmd.Profile != "" {
		profile, err := appconfig.FindProfile(cfg.ProfilesDir, cmd.Profile)
		if err != nil {
			return capture, fmt.Errorf("profile %q: %w", cmd.Profile, err)
		}
		capture = profile.Apply(capture)
	}
	if cmd.TargetSampleRate > 0 {
		capture.TargetSampleRate = cmd.TargetSampleRate
	}
	if cmd.BufferCapacity != 0 {
		capture.BufferCapacity = cmd.BufferCapacity
	}
	if cmd.FlushPartialOnClose != nil {
		capture.FlushPartialOnClose = *cmd.FlushPartialOnClose
	}
	if cmd.Resampler != "" {
		capture.Resampler = cmd.Resampler
	}
	if cmd.SourceSampleRate > float64(capture.MaxSourceSampleRate) {
		return capture, fmt.Errorf("source rate %v above %d: %w", cmd.SourceSampleRate, capture.MaxSourceSampleRate, audio.ErrInvalidSampleRate)
	}
	return capture, nil
}

func (c *connection) buildSinks(sessionID string, pipelineCfg audio.Config) ([]session.ChunkSink, string, error) {
	var sinks []session.ChunkSink
	recordingID := ""

	if store := c.handler.store; store != nil {
		rec, err := store.Create(int(pipelineCfg.TargetSampleRate))
		if err != nil {
			return nil, "", fmt.Errorf("create recording: %w", err)
		}
		sinks = append(sinks, rec)
		recordingID = rec.ID()
	}

	upCfg := c.handler.config.Uplink
	if upCfg.Enabled() {
		client, err := uplink.NewClient(uplink.Config{
			BackendURL:      upCfg.BackendURL,
			ProtocolVersion: upCfg.ProtocolVersion,
			AudioParams: uplink.AudioParams{
				Format:        upCfg.AudioFormat,
				SampleRate:    int(pipelineCfg.TargetSampleRate),
				FrameDuration: upCfg.FrameDuration,
				ChunkSamples:  pipelineCfg.BufferCapacity,
			},
			DeviceID:     fallbackID(upCfg.DeviceID, "uplink-device-"+sessionID),
			ClientID:     fallbackID(upCfg.ClientID, "uplink-client-"+sessionID),
			AccessToken:  upCfg.AccessToken,
			HelloTimeout: upCfg.HelloTimeout,
		}, c.uplinkCallbacks(sessionID), c.logger)
		if err != nil {
			closeSinks(sinks)
			return nil, "", err
		}
		client.Connect(c.ctx)
		sinks = append(sinks, session.NewUplinkSink(client, c.handler.metrics, c.logger))
	}
	return sinks, recordingID, nil
}

func (c *connection) uplinkCallbacks(sessionID string) uplink.Callbacks {
	m := c.handler.metrics
	return uplink.Callbacks{
		OnTranscript: func(t uplink.Transcript) {
			m.RecordTranscript()
			c.sendJSON(protocol.ServerEvent{
				Type:      protocol.EventTranscript,
				SessionID: sessionID,
				Text:      t.Text,
				Final:     t.Final,
			})
		},
		OnGoodbye: func() {
			c.sendError("speech service closed the session")
		},
		OnDisconnected: func(err error) {
			m.RecordReconnect()
		},
		OnError: func(err error) {
			m.RecordUplinkError("read")
			c.logger.Warn("uplink error", zap.String("session_id", sessionID), zap.Error(err))
		},
	}
}

func (c *connection) onBinaryBlock(data []byte) {
	if c.capture == nil {
		c.sendError("no active capture session")
		return
	}
	c.samples = audio.BytesToFloat32SliceInto(c.samples, data)
	c.capture.Feed(c.samples)
}

func (c *connection) onAudioBlock(cmd protocol.ClientCommand) {
	if c.capture == nil {
		c.sendError("no active capture session")
		return
	}
	c.samples = audio.Float64SliceToFloat32Into(c.samples, cmd.Audio)
	c.capture.Feed(c.samples)
}

func (c *connection) onStop(_ protocol.ClientCommand) {
	if c.capture == nil {
		c.sendError("no active capture session")
		return
	}
	capture := c.capture
	c.capture = nil
	if _, err := capture.Stop(); err != nil {
		c.sendError(err.Error())
		return
	}
	<-capture.Done()
	c.handler.registry.Remove(capture.ID())

	c.sendJSON(protocol.ServerEvent{
		Type:      protocol.EventSessionStopped,
		SessionID: capture.ID(),
		Stats:     capture.Stats(),
	})
}

func (c *connection) onNoop(_ protocol.ClientCommand) {}

func closeSinks(sinks []session.ChunkSink) {
	for _, sink := range sinks {
		if closer, ok := sink.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
}

func fallbackID(value string, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
