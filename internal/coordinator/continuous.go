package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/christopherlouet/stt-clipboard/internal/recorder"
	"github.com/christopherlouet/stt-clipboard/internal/trigger"
)

// continuousSession tracks one dictation run. The recording goroutine owns
// the pipeline; texts are read by the stop trigger after done is closed.
type continuousSession struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	texts []string
}

func (s *continuousSession) append(text string) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
}

func (s *continuousSession) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

// startContinuous begins a dictation session. The session lives until a stop
// trigger (or daemon shutdown) cancels it; the trigger connection's context
// must not bound it, so the session runs on its own context.
func (c *Coordinator) startContinuous(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if !c.ready {
		c.mu.Unlock()
		return Outcome{}, ErrNotReady
	}
	if c.state != StateIdle {
		c.metrics.BusyRejections.Add(ctx, 1)
		c.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &continuousSession{cancel: cancel, done: make(chan struct{})}
	c.state = StateRecording
	c.cont = sess
	c.mu.Unlock()

	c.metrics.ActiveRequests.Add(ctx, 1)
	c.notify.RecordingStarted(ctx)
	c.log.Info("continuous dictation started")

	go c.runContinuous(sessCtx, sess)
	return Outcome{}, nil
}

// stopContinuous ends the running session and surfaces the texts it copied.
func (c *Coordinator) stopContinuous(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	sess := c.cont
	c.cont = nil
	c.mu.Unlock()
	if sess == nil {
		return Outcome{}, ErrNoSession
	}

	// Cancellation makes the recording goroutine return promptly, so the
	// wait is bounded.
	sess.cancel()
	<-sess.done

	c.metrics.ActiveRequests.Add(ctx, -1)
	c.setState(StateIdle)

	texts := sess.snapshot()
	c.metrics.RecordRequest(ctx, trigger.EventStopContinuous.String(), "ok")
	c.log.Info("continuous dictation stopped", "utterances", len(texts))
	return Outcome{Text: strings.Join(texts, " "), Session: texts}, nil
}

// runContinuous drives the segmentation loop for one session. Each completed
// utterance is transcribed, formatted, and copied; failures skip the
// utterance so one bad inference does not end the dictation.
func (c *Coordinator) runContinuous(ctx context.Context, sess *continuousSession) {
	defer close(sess.done)

	err := c.rec.RecordContinuous(ctx, func(utt recorder.Utterance) error {
		text, lang, elapsed, err := c.transcribe(ctx, utt)
		if err != nil {
			c.log.Warn("utterance dropped", "error", err)
			return nil
		}
		if text == "" {
			c.metrics.NoSpeech.Add(ctx, 1)
			return nil
		}

		text = c.applyFormat(text, lang)

		copyStart := time.Now()
		err = c.copier.Copy(ctx, text)
		c.metrics.RecordStage(ctx, c.metrics.CopyDuration, time.Since(copyStart))
		if err != nil {
			c.log.Warn("utterance dropped, clipboard copy failed", "error", err)
			return nil
		}

		sess.append(text)
		c.addHistory(text, lang, utt.Duration, elapsed)
		c.notify.TextCopied(ctx, text)
		c.metrics.AudioSeconds.Add(ctx, utt.Duration.Seconds())
		return nil
	})
	if err == nil || ctx.Err() != nil {
		return
	}

	// The capture stream died on its own. Tear the session down so the
	// daemon does not stay stuck in the recording state.
	c.log.Error("continuous dictation aborted", "error", err)
	c.notify.Failure(context.WithoutCancel(ctx), "continuous dictation aborted")
	c.mu.Lock()
	if c.cont == sess {
		c.cont = nil
		c.state = StateIdle
	}
	c.mu.Unlock()
	c.metrics.ActiveRequests.Add(context.WithoutCancel(ctx), -1)
}
