package tui

import "time"

type stage int

const (
	stageLoading stage = iota
	stageChat
)

type focusArea int

const (
	focusComposer focusArea = iota
	focusSidebar
)

const heroTagline = "목소리로 대화하는 점자 비서, 소리."

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	sidebarWidth              = 28
	gestureTickInterval       = 50 * time.Millisecond
	speechSweepInterval       = time.Minute
)

// agentPreSubmitDelay is applied before submitting to the guide agent; its
// backend pipeline needs a moment to set up retrieval.
const agentPreSubmitDelay = 3 * time.Second

const composerPlaceholder = "메시지를 입력하세요. Tab 후 스페이스 두 번으로 말할 수 있어요…"

const (
	fallbackReplyText  = "응답을 받지 못했습니다."
	serverErrorPrefix  = "죄송합니다. 서버와 통신 중 오류가 발생했습니다: %s"
	busyStreamingText  = "이전 응답이 아직 진행 중입니다."
	emptySpeechText    = "음성을 인식하지 못했습니다. 다시 말씀해 주세요."
	recordingBeganText = "녹음을 시작했습니다."
	recordingEndedText = "녹음을 마치고 변환 중입니다."
)

type agentProfile struct {
	id    int
	label string
	// filesOnly agents ignore typed text and require an attachment.
	filesOnly bool
	// preDelay is a wait inserted between submit and the process call.
	preDelay time.Duration
}

var agentProfiles = []agentProfile{
	{id: 0, label: "기본 대화"},
	{id: 1, label: "생활 안내", preDelay: agentPreSubmitDelay},
	{id: 5, label: "문서 점역", filesOnly: true},
}

const documentAgentQuery = "첨부한 문서를 점자로 변환해주세요."
