package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/sapie-ai/sori/internal/api"
	"github.com/sapie-ai/sori/internal/chat"
	"github.com/sapie-ai/sori/internal/files"
	"github.com/sapie-ai/sori/internal/speech"
	"github.com/sapie-ai/sori/internal/voice"
)

// AudioRecorder captures one microphone clip at a time.
type AudioRecorder interface {
	Start(ctx context.Context) error
	Stop() ([]byte, error)
	Abort()
	Recording() bool
}

// RecordingCue plays the earcons bracketing a recording.
type RecordingCue interface {
	RecordingStarted()
	RecordingStopped()
}

// Config wires runtime services into the TUI program.
type Config struct {
	Client      *api.Client
	Store       *chat.Store
	Speech      *speech.Service
	Recorder    AudioRecorder
	Cue         RecordingCue
	Gesture     *voice.Gesture
	User        string
	AgentID     int
	Language    string
	ModelHint   string
	DownloadDir string
	Logger      *zap.Logger
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	if config.Gesture == nil {
		config.Gesture = voice.NewGesture(voice.ModeDoubleTap, 0, 0)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	composer := textinput.New()
	composer.Placeholder = composerPlaceholder
	composer.CharLimit = 500
	composer.Width = 70
	composer.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	agentIdx := 0
	for i, profile := range agentProfiles {
		if profile.id == config.AgentID {
			agentIdx = i
		}
	}

	return &model{
		config:   config,
		logger:   config.Logger,
		stage:    stageLoading,
		focus:    focusComposer,
		layout:   newPageLayout(),
		composer: composer,
		spinner:  spin,
		viewport: vp,
		agentIdx: agentIdx,
		announcement: "대화 목록을 불러오는 중입니다.",
		viewportDirty: true,
	}
}

type model struct {
	config Config
	logger *zap.Logger
	stage  stage
	focus  focusArea
	layout pageLayout

	composer textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	sessions      []chat.Session
	sidebarCursor int

	messages    []chat.Message
	attachments []files.Attachment

	streaming    bool
	stream       *api.Stream
	streamCancel context.CancelFunc
	streamToken  string
	pendingReply strings.Builder

	recording    bool
	transcribing bool

	agentIdx       int
	brailleVisible bool

	// announcement is the live-region line a screen reader tracks; it only
	// ever holds the single most recent state change.
	announcement string
	infoMessage  string
	errorMessage string

	viewportDirty bool
}

type sessionsLoadedMsg struct {
	sessions []chat.Session
	err      error
}

type sessionsRefreshMsg struct{}

type sessionSelectedMsg struct {
	id       string
	messages []chat.Message
	switched bool
	err      error
}

type sessionDeletedMsg struct {
	id        string
	wasActive bool
	err       error
}

type recordingStartedMsg struct {
	err error
}

type transcribedMsg struct {
	text string
	err  error
}

type streamStartedMsg struct {
	token  string
	stream *api.Stream
	cancel context.CancelFunc
	files  []chat.FileRef
	err    error
}

type userBrailleMsg struct {
	token     string
	messageID string
	braille   string
	err       error
}

type streamEventMsg struct {
	token string
	event api.Event
	err   error
}

type speechDoneMsg struct {
	err error
}

type brfSavedMsg struct {
	path string
	err  error
}

type gestureTickMsg struct {
	at time.Time
}

type sweepTickMsg struct{}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.loadSessionsCmd(), sweepTickCmd())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.stage == stageLoading || m.streaming || m.recording || m.transcribing {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.layout.Update(msg.Width, msg.Height)
		m.viewport.Width = m.layout.viewportWidth
		m.viewport.Height = m.layout.viewportHeight
		m.composer.Width = m.layout.viewportWidth
		m.markViewportDirty()
		return m, nil
	case sessionsLoadedMsg:
		return m.handleSessionsLoaded(msg)
	case sessionsRefreshMsg:
		return m, m.loadSessionsCmd()
	case sessionSelectedMsg:
		return m.handleSessionSelected(msg)
	case sessionDeletedMsg:
		return m.handleSessionDeleted(msg)
	case recordingStartedMsg:
		return m.handleRecordingStarted(msg)
	case transcribedMsg:
		return m.handleTranscribed(msg)
	case streamStartedMsg:
		return m.handleStreamStarted(msg)
	case streamEventMsg:
		return m.handleStreamEvent(msg)
	case userBrailleMsg:
		return m.handleUserBraille(msg)
	case speechDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, speech.ErrPlaybackBusy) {
			m.logger.Debug("speech playback failed", zap.Error(msg.err))
		}
		return m, nil
	case brfSavedMsg:
		if msg.err != nil {
			m.setError(fmt.Sprintf("점자 파일 저장 실패: %v", msg.err))
			return m, nil
		}
		m.announce(fmt.Sprintf("점자 파일을 저장했습니다: %s", msg.path))
		return m, nil
	case gestureTickMsg:
		return m.handleGestureTick(msg.at)
	case sweepTickMsg:
		m.config.Speech.SweepExpired()
		return m, sweepTickCmd()
	}
	return m, nil
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyCtrlC:
		m.shutdown()
		return m, tea.Quit
	case tea.KeyTab:
		return m.toggleFocus()
	case tea.KeySpace:
		return m.handleSpace()
	case tea.KeyCtrlR:
		return m, m.replayLastReply()
	case tea.KeyCtrlB:
		return m, m.downloadLastBraille()
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(key)
	}
	return m.handleComposerKey(key)
}

func (m *model) toggleFocus() (tea.Model, tea.Cmd) {
	// Losing the gesture surface forces the machine idle; if a recording was
	// in flight it must be stopped, not left running unattended.
	cmd := m.applyGestureIntent(m.config.Gesture.Blur())
	if m.focus == focusComposer {
		m.focus = focusSidebar
		m.composer.Blur()
		m.announce("대화 목록으로 이동했습니다.")
	} else {
		m.focus = focusComposer
		m.composer.Focus()
		m.announce("입력창으로 이동했습니다.")
	}
	return m, cmd
}

// handleSpace routes the spacebar: plain typing while the composer has
// focus, recording gesture from the session list.
func (m *model) handleSpace() (tea.Model, tea.Cmd) {
	if m.focus == focusComposer {
		var cmd tea.Cmd
		m.composer, cmd = m.composer.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
		return m, cmd
	}

	intent := m.config.Gesture.KeyDown(time.Now(), false)
	cmd := m.applyGestureIntent(intent)
	if m.config.Gesture.Active() {
		return m, tea.Batch(cmd, gestureTickCmd())
	}
	return m, cmd
}

func (m *model) handleGestureTick(at time.Time) (tea.Model, tea.Cmd) {
	intent := m.config.Gesture.Tick(at)
	cmd := m.applyGestureIntent(intent)
	if m.config.Gesture.Active() {
		return m, tea.Batch(cmd, gestureTickCmd())
	}
	return m, cmd
}

func (m *model) applyGestureIntent(intent voice.Intent) tea.Cmd {
	switch intent {
	case voice.IntentStart:
		if m.streaming {
			m.config.Gesture.Reset()
			m.announce(busyStreamingText)
			return nil
		}
		m.recording = true
		m.announce(recordingBeganText)
		m.markViewportDirty()
		return tea.Batch(m.spinner.Tick, m.startRecordingCmd())
	case voice.IntentStop:
		if !m.recording {
			return nil
		}
		m.recording = false
		m.transcribing = true
		m.announce(recordingEndedText)
		m.markViewportDirty()
		return tea.Batch(m.spinner.Tick, m.stopRecordingCmd())
	}
	return nil
}

func (m *model) handleRecordingStarted(msg recordingStartedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.recording = false
		m.config.Gesture.Reset()
		m.setError(fmt.Sprintf("마이크를 사용할 수 없습니다: %v", msg.err))
		m.announce("마이크를 사용할 수 없습니다.")
		m.markViewportDirty()
	}
	return m, nil
}

func (m *model) handleTranscribed(msg transcribedMsg) (tea.Model, tea.Cmd) {
	m.transcribing = false
	m.markViewportDirty()
	if msg.err != nil {
		m.setError(fmt.Sprintf("음성 인식 실패: %v", msg.err))
		m.announce("음성 인식에 실패했습니다.")
		return m, nil
	}
	if strings.TrimSpace(msg.text) == "" {
		m.announce(emptySpeechText)
		return m, nil
	}
	return m, m.submit(msg.text, true)
}

func (m *model) handleSidebarKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "j", "down":
		if m.sidebarCursor < len(m.sessions)-1 {
			m.sidebarCursor++
			m.announceSessionUnderCursor()
		}
		return m, nil
	case "k", "up":
		if m.sidebarCursor > 0 {
			m.sidebarCursor--
			m.announceSessionUnderCursor()
		}
		return m, nil
	case "enter":
		if m.sidebarCursor >= len(m.sessions) {
			return m, nil
		}
		if m.streaming {
			m.announce(busyStreamingText)
			return m, nil
		}
		return m, m.selectSessionCmd(m.sessions[m.sidebarCursor].ID)
	case "d":
		if m.sidebarCursor >= len(m.sessions) {
			return m, nil
		}
		return m, m.deleteSessionCmd(m.sessions[m.sidebarCursor].ID)
	case "n":
		if m.streaming {
			m.announce(busyStreamingText)
			return m, nil
		}
		m.config.Store.StartNewChat()
		m.messages = nil
		m.attachments = nil
		m.focus = focusComposer
		m.composer.Focus()
		m.announce("새 대화를 시작합니다.")
		m.markViewportDirty()
		return m, nil
	case "a":
		m.agentIdx = (m.agentIdx + 1) % len(agentProfiles)
		m.announce(fmt.Sprintf("상담원을 변경했습니다: %s", agentProfiles[m.agentIdx].label))
		return m, nil
	case "b":
		m.brailleVisible = !m.brailleVisible
		if m.brailleVisible {
			m.announce("점자 표시를 켰습니다.")
		} else {
			m.announce("점자 표시를 껐습니다.")
		}
		m.markViewportDirty()
		return m, nil
	}
	return m, nil
}

func (m *model) handleComposerKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(key)
	if key.Type != tea.KeyEnter {
		return m, cmd
	}

	value := strings.TrimSpace(m.composer.Value())
	m.composer.SetValue("")
	if value == "" {
		return m, cmd
	}
	if path, ok := strings.CutPrefix(value, "/file "); ok {
		m.stageAttachment(strings.TrimSpace(path))
		return m, cmd
	}
	if path, ok := strings.CutPrefix(value, "/첨부 "); ok {
		m.stageAttachment(strings.TrimSpace(path))
		return m, cmd
	}
	return m, tea.Batch(cmd, m.submit(value, false))
}

func (m *model) stageAttachment(path string) {
	if path == "" {
		m.announce("첨부할 파일 경로를 입력해 주세요.")
		return
	}
	att, err := files.Stat(path)
	if err != nil {
		m.setError(fmt.Sprintf("파일을 열 수 없습니다: %v", err))
		m.announce("파일을 열 수 없습니다.")
		return
	}
	m.attachments = append(m.attachments, att)
	if att.Preview != "" {
		m.announce(fmt.Sprintf("%s 첨부됨. 미리보기: %s", att.Name, att.Preview))
	} else {
		m.announce(fmt.Sprintf("%s 첨부됨.", att.Name))
	}
	m.markViewportDirty()
}

// submit posts one exchange. A submission while a reply is still streaming
// is refused rather than queued.
func (m *model) submit(text string, isVoice bool) tea.Cmd {
	if m.streaming {
		m.announce(busyStreamingText)
		return nil
	}

	agent := agentProfiles[m.agentIdx]
	if agent.filesOnly {
		if len(m.attachments) == 0 {
			m.announce("문서 점역에는 첨부 파일이 필요합니다. /file <경로>로 첨부하세요.")
			return nil
		}
		text = documentAgentQuery
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	userMsg := chat.Message{
		ID:        chat.NewMessageID(),
		Role:      chat.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
		IsVoice:   isVoice,
	}

	sessionID := m.config.Store.ActiveID()
	if sessionID == "" {
		sessionID = chat.NewSessionID()
		m.config.Store.AddNewSession(sessionID, userMsg)
		m.config.Store.SetActive(sessionID)
		m.sessions = m.config.Store.Sessions()
		m.messages = []chat.Message{userMsg}
	} else {
		m.messages = append(m.messages, userMsg)
	}

	req := api.ProcessRequest{
		Query:          text,
		ConversationID: sessionID,
		User:           m.config.User,
		AgentID:        agent.id,
	}
	if isVoice {
		req.IsVoice = 1
	}

	staged := m.attachments
	m.attachments = nil

	m.streaming = true
	m.streamToken = sessionID
	m.pendingReply.Reset()
	m.clearError()
	m.announce("답변을 기다리는 중입니다.")
	m.markViewportDirty()
	return tea.Batch(
		m.spinner.Tick,
		m.submitCmd(sessionID, req, staged, agent.preDelay),
		m.userBrailleCmd(sessionID, userMsg.ID, text),
	)
}

func (m *model) handleStreamStarted(msg streamStartedMsg) (tea.Model, tea.Cmd) {
	if msg.token != m.streamToken || !m.streaming {
		// A stale start: the user already moved on.
		if msg.stream != nil {
			_ = msg.stream.Close()
		}
		if msg.cancel != nil {
			msg.cancel()
		}
		return m, nil
	}
	if len(msg.files) > 0 {
		// The upload handles belong on the message that carried them.
		for i := len(m.messages) - 1; i >= 0; i-- {
			if m.messages[i].Role == chat.RoleUser {
				m.messages[i].Files = msg.files
				break
			}
		}
		m.markViewportDirty()
	}
	if msg.err != nil {
		return m, m.finalizeReply(fmt.Sprintf(serverErrorPrefix, msg.err), "")
	}
	m.stream = msg.stream
	m.streamCancel = msg.cancel
	return m, readEventCmd(msg.token, msg.stream)
}

func (m *model) handleStreamEvent(msg streamEventMsg) (tea.Model, tea.Cmd) {
	if msg.token != m.streamToken || !m.streaming {
		return m, nil
	}

	if msg.err != nil {
		if errors.Is(msg.err, io.EOF) {
			// Stream ended without message_end; keep whatever arrived.
			content := m.pendingReply.String()
			if strings.TrimSpace(content) == "" {
				content = fallbackReplyText
			}
			return m, m.finalizeReply(content, "")
		}
		return m, m.finalizeReply(fmt.Sprintf(serverErrorPrefix, msg.err), "")
	}

	switch msg.event.Kind {
	case api.EventMessage:
		m.pendingReply.WriteString(msg.event.Chunk)
		m.markViewportDirty()
		return m, readEventCmd(msg.token, m.stream)
	case api.EventMessageEnd:
		content := m.pendingReply.String()
		if strings.TrimSpace(content) == "" {
			content = fallbackReplyText
		}
		return m, m.finalizeReply(content, msg.event.Braille)
	case api.EventError:
		return m, m.finalizeReply(fmt.Sprintf(serverErrorPrefix, msg.event.Message), "")
	}
	return m, readEventCmd(msg.token, m.stream)
}

// finalizeReply closes out the exchange: the assistant message is appended,
// persisted, announced, and spoken.
func (m *model) finalizeReply(content, braille string) tea.Cmd {
	m.closeStream()
	m.streaming = false
	m.pendingReply.Reset()

	reply := chat.Message{
		ID:        chat.NewMessageID(),
		Role:      chat.RoleAssistant,
		Content:   content,
		Braille:   braille,
		CreatedAt: time.Now(),
	}
	m.messages = append(m.messages, reply)
	m.config.Store.SaveOrUpdate(m.streamToken, m.messages)
	m.sessions = m.config.Store.Sessions()
	m.announce(content)
	m.markViewportDirty()
	return tea.Batch(refreshAfterSaveCmd(), m.preSynthesizeCmd(content))
}

func (m *model) handleUserBraille(msg userBrailleMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.logger.Debug("braille conversion failed", zap.Error(msg.err))
		return m, nil
	}
	if msg.token != m.config.Store.ActiveID() {
		return m, nil
	}
	for i := range m.messages {
		if m.messages[i].ID == msg.messageID {
			m.messages[i].Braille = msg.braille
			m.config.Store.SaveOrUpdate(msg.token, m.messages)
			m.markViewportDirty()
			break
		}
	}
	return m, nil
}

func (m *model) closeStream() {
	if m.stream != nil {
		_ = m.stream.Close()
		m.stream = nil
	}
	if m.streamCancel != nil {
		m.streamCancel()
		m.streamCancel = nil
	}
}

func (m *model) replayLastReply() tea.Cmd {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Role == chat.RoleAssistant {
			return m.speakCmd(m.messages[i].Content, true)
		}
	}
	m.announce("다시 들을 답변이 없습니다.")
	return nil
}

func (m *model) downloadLastBraille() tea.Cmd {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Role == chat.RoleAssistant && m.messages[i].Braille != "" {
			return m.downloadBRFCmd(m.messages[i].Braille)
		}
	}
	m.announce("저장할 점자 답변이 없습니다.")
	return nil
}

func (m *model) handleSessionsLoaded(msg sessionsLoadedMsg) (tea.Model, tea.Cmd) {
	m.stage = stageChat
	if msg.err != nil {
		m.setError(fmt.Sprintf("대화 목록을 불러오지 못했습니다: %v", msg.err))
		return m, nil
	}
	m.sessions = msg.sessions
	if m.sidebarCursor >= len(m.sessions) {
		m.sidebarCursor = 0
	}
	return m, nil
}

func (m *model) handleSessionSelected(msg sessionSelectedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.setError(fmt.Sprintf("대화를 불러오지 못했습니다: %v", msg.err))
		return m, nil
	}
	if !msg.switched {
		return m, nil
	}
	m.messages = msg.messages
	m.attachments = nil
	m.focus = focusComposer
	m.composer.Focus()
	m.viewport.SetYOffset(0)
	m.clearError()
	m.announce("대화를 불러왔습니다.")
	m.markViewportDirty()
	return m, nil
}

func (m *model) handleSessionDeleted(msg sessionDeletedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.setError(fmt.Sprintf("대화를 삭제하지 못했습니다: %v", msg.err))
		m.announce("대화 삭제에 실패했습니다.")
		return m, nil
	}
	m.sessions = m.config.Store.Sessions()
	if m.sidebarCursor >= len(m.sessions) && m.sidebarCursor > 0 {
		m.sidebarCursor--
	}
	if msg.wasActive {
		m.messages = nil
		m.markViewportDirty()
	}
	m.announce("대화를 삭제했습니다.")
	return m, nil
}

func (m *model) announceSessionUnderCursor() {
	if m.sidebarCursor < len(m.sessions) {
		m.announce(m.sessions[m.sidebarCursor].Title)
	}
}

func (m *model) announce(text string) {
	m.announcement = text
}

func (m *model) setError(text string) {
	m.errorMessage = text
}

func (m *model) clearError() {
	m.errorMessage = ""
}

func (m *model) markViewportDirty() {
	m.viewportDirty = true
}

// shutdown releases everything that outlives the event loop.
func (m *model) shutdown() {
	m.closeStream()
	if m.config.Recorder != nil && m.config.Recorder.Recording() {
		m.config.Recorder.Abort()
	}
	if m.config.Speech != nil {
		m.config.Speech.Stop()
	}
}

var (
	sectionHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	userLabelStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("110"))
	replyLabelStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	brailleStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	announceStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	recordingStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ff6b6b")).Padding(0, 1)
	sidebarStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(0, 1)
	currentLineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6"))
	activeMarkStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#a3be8c"))
	taglineStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb347")).Italic(true)
	heroTitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff8c00"))
)
