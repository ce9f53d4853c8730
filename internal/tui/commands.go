package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sapie-ai/sori/internal/api"
	"github.com/sapie-ai/sori/internal/chat"
	"github.com/sapie-ai/sori/internal/files"
	"github.com/sapie-ai/sori/internal/transcript"
	"github.com/sapie-ai/sori/internal/voice"
)

func (m *model) loadSessionsCmd() tea.Cmd {
	store := m.config.Store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		sessions, err := store.Load(ctx)
		return sessionsLoadedMsg{sessions: sessions, err: err}
	}
}

func (m *model) selectSessionCmd(id string) tea.Cmd {
	store := m.config.Store
	current := append([]chat.Message(nil), m.messages...)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		messages, switched, err := store.Select(ctx, id, current)
		return sessionSelectedMsg{id: id, messages: messages, switched: switched, err: err}
	}
}

func (m *model) deleteSessionCmd(id string) tea.Cmd {
	store := m.config.Store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		wasActive, err := store.Delete(ctx, id)
		return sessionDeletedMsg{id: id, wasActive: wasActive, err: err}
	}
}

func refreshAfterSaveCmd() tea.Cmd {
	return tea.Tick(chat.RefreshDelay, func(time.Time) tea.Msg {
		return sessionsRefreshMsg{}
	})
}

func (m *model) startRecordingCmd() tea.Cmd {
	recorder := m.config.Recorder
	cue := m.config.Cue
	return func() tea.Msg {
		if err := recorder.Start(context.Background()); err != nil {
			return recordingStartedMsg{err: err}
		}
		cue.RecordingStarted()
		return recordingStartedMsg{}
	}
}

func (m *model) stopRecordingCmd() tea.Cmd {
	recorder := m.config.Recorder
	cue := m.config.Cue
	client := m.config.Client
	params := api.TranscribeParams{
		ModelHint: m.config.ModelHint,
		Language:  m.config.Language,
	}
	return func() tea.Msg {
		audio, err := recorder.Stop()
		cue.RecordingStopped()
		if err != nil {
			return transcribedMsg{err: err}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		text, err := client.Transcribe(ctx, audio, voice.CaptureFilename, params)
		if err != nil {
			return transcribedMsg{err: err}
		}
		return transcribedMsg{text: transcript.Filter(text)}
	}
}

// submitCmd uploads any staged attachments, optionally waits out the agent's
// pre-submit delay, and opens the process stream. The token pins events to
// the session that was active at submit time.
func (m *model) submitCmd(token string, req api.ProcessRequest, staged []files.Attachment, delay time.Duration) tea.Cmd {
	client := m.config.Client
	user := m.config.User
	return func() tea.Msg {
		// The context must outlive this function: the stream keeps reading
		// from it until message_end. The model cancels it on stream close.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)

		var refs []chat.FileRef
		for _, att := range staged {
			ref, err := files.Upload(ctx, client, att, user)
			if err != nil {
				cancel()
				return streamStartedMsg{token: token, files: refs, err: err}
			}
			refs = append(refs, ref)
			req.Files = append(req.Files, api.UploadedFile{
				UploadFileID:   ref.ID,
				Name:           ref.Name,
				Type:           ref.Kind,
				MimeType:       ref.MimeType,
				TransferMethod: "local_file",
			})
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				cancel()
				return streamStartedMsg{token: token, files: refs, err: ctx.Err()}
			}
		}

		stream, err := client.Process(ctx, req)
		if err != nil {
			cancel()
			return streamStartedMsg{token: token, files: refs, err: err}
		}
		return streamStartedMsg{token: token, stream: stream, cancel: cancel, files: refs}
	}
}

// userBrailleCmd fetches the braille rendering of the user's own message.
// Failures are silent: the message simply shows without a braille line.
func (m *model) userBrailleCmd(token, messageID, text string) tea.Cmd {
	client := m.config.Client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		braille, err := client.ConvertToBraille(ctx, text)
		return userBrailleMsg{token: token, messageID: messageID, braille: braille, err: err}
	}
}

func readEventCmd(token string, stream *api.Stream) tea.Cmd {
	return func() tea.Msg {
		event, err := stream.Next()
		return streamEventMsg{token: token, event: event, err: err}
	}
}

// preSynthesizeCmd warms the speech cache so Ctrl+R can replay the reply
// without a round-trip. It never starts playback.
func (m *model) preSynthesizeCmd(text string) tea.Cmd {
	svc := m.config.Speech
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		return speechDoneMsg{err: svc.PreSynthesize(ctx, text)}
	}
}

func (m *model) speakCmd(text string, force bool) tea.Cmd {
	svc := m.config.Speech
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		return speechDoneMsg{err: svc.Play(ctx, text, force)}
	}
}

func (m *model) downloadBRFCmd(braille string) tea.Cmd {
	client := m.config.Client
	dir := m.config.DownloadDir
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		data, err := client.DownloadBRF(ctx, braille)
		if err != nil {
			return brfSavedMsg{err: err}
		}
		if dir == "" {
			dir = "."
		}
		path := filepath.Join(dir, fmt.Sprintf("braille-%s.brf", time.Now().Format("20060102-150405")))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return brfSavedMsg{err: err}
		}
		return brfSavedMsg{path: path}
	}
}

func gestureTickCmd() tea.Cmd {
	return tea.Tick(gestureTickInterval, func(t time.Time) tea.Msg {
		return gestureTickMsg{at: t}
	})
}

func sweepTickCmd() tea.Cmd {
	return tea.Tick(speechSweepInterval, func(time.Time) tea.Msg {
		return sweepTickMsg{}
	})
}
