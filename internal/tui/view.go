package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/sapie-ai/sori/internal/chat"
	"github.com/sapie-ai/sori/internal/voice"
)

func (m *model) View() string {
	m.refreshViewportIfDirty()

	main := lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), m.viewport.View())
	return joinNonEmpty([]string{
		m.heroView(),
		main,
		m.composerPanel(),
		m.statusLine(),
		m.liveRegion(),
	})
}

func (m *model) heroView() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		heroTitleStyle.Render("소리 SORI"),
		taglineStyle.Render(heroTagline),
	)
}

func (m *model) sidebarView() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("대화 목록"))
	b.WriteRune('\n')
	if m.stage == stageLoading {
		b.WriteString(helperStyle.Render(m.spinner.View() + " 불러오는 중…"))
	} else if len(m.sessions) == 0 {
		b.WriteString(helperStyle.Render("대화가 없습니다."))
	}

	activeID := m.config.Store.ActiveID()
	visible := m.sessions
	offset := 0
	if h := m.layout.sidebarHeight; h > 0 && len(visible) > h {
		offset = m.sidebarCursor - h + 1
		if offset < 0 {
			offset = 0
		}
		if offset > len(visible)-h {
			offset = len(visible) - h
		}
		visible = visible[offset : offset+h]
	}
	for i, session := range visible {
		idx := i + offset
		label := truncate(session.Title, sidebarWidth-4)
		if label == "" {
			label = "(제목 없음)"
		}
		line := "  " + label
		if idx == m.sidebarCursor && m.focus == focusSidebar {
			line = currentLineStyle.Render("▸ " + label)
		} else if session.ID == activeID {
			line = activeMarkStyle.Render("* " + label)
		}
		b.WriteString(line)
		b.WriteRune('\n')
	}
	return sidebarStyle.Width(sidebarWidth).Render(b.String())
}

func (m *model) refreshViewportIfDirty() {
	if !m.viewportDirty {
		return
	}
	m.viewportDirty = false
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderConversation())
	if atBottom || m.streaming {
		m.viewport.GotoBottom()
	}
}

func (m *model) renderConversation() string {
	wrap := m.layout.viewportWidth - 4
	if wrap < 20 {
		wrap = 20
	}

	if len(m.messages) == 0 && !m.streaming && !m.recording {
		return helperStyle.Render("메시지를 입력하거나, Tab으로 목록에서 스페이스를 두 번 눌러 말하세요.")
	}

	var parts []string
	for _, msg := range m.messages {
		parts = append(parts, m.renderMessage(msg, wrap))
	}
	if m.streaming {
		body := m.pendingReply.String()
		if body == "" {
			body = m.spinner.View() + " 답변을 기다리는 중…"
		} else {
			body = wordwrap.String(body, wrap)
		}
		parts = append(parts, replyLabelStyle.Render("소리")+"\n"+indentMultiline(body, "  "))
	}
	if m.recording {
		parts = append(parts, m.recordingIndicator())
	}
	if m.transcribing {
		parts = append(parts, helperStyle.Render(m.spinner.View()+" 음성을 글로 옮기는 중…"))
	}
	return strings.Join(parts, "\n\n")
}

func (m *model) renderMessage(msg chat.Message, wrap int) string {
	label := replyLabelStyle.Render("소리")
	if msg.Role == chat.RoleUser {
		label = userLabelStyle.Render("나")
		if msg.IsVoice {
			label += helperStyle.Render(" (음성)")
		}
	}

	lines := []string{label, indentMultiline(wordwrap.String(msg.Content, wrap), "  ")}
	for _, file := range msg.Files {
		lines = append(lines, helperStyle.Render("  📎 "+file.Name))
	}
	if m.brailleVisible && msg.Braille != "" {
		lines = append(lines, brailleStyle.Render(indentMultiline(wordwrap.String(msg.Braille, wrap), "  ")))
	}
	return strings.Join(lines, "\n")
}

func (m *model) recordingIndicator() string {
	label := "● 녹음 중… 스페이스를 두 번 눌러 마치세요."
	if m.config.Gesture.Mode() == voice.ModeHold {
		label = fmt.Sprintf("● 녹음 중… %d%%  스페이스에서 손을 떼면 마칩니다.", m.config.Gesture.Progress(time.Now()))
	}
	return recordingStyle.Render(label)
}

func (m *model) composerPanel() string {
	parts := []string{m.composer.View()}
	if len(m.attachments) > 0 {
		names := make([]string, 0, len(m.attachments))
		for _, att := range m.attachments {
			names = append(names, att.Name)
		}
		parts = append(parts, helperStyle.Render("첨부: "+strings.Join(names, ", ")))
	}
	return strings.Join(parts, "\n")
}

func (m *model) statusLine() string {
	stats := []string{
		fmt.Sprintf("상담원 %s", agentProfiles[m.agentIdx].label),
	}
	switch {
	case m.recording:
		stats = append(stats, "녹음 중")
	case m.transcribing:
		stats = append(stats, "변환 중")
	case m.streaming:
		stats = append(stats, "응답 중")
	}
	if m.config.Speech.Playing() {
		stats = append(stats, "재생 중")
	}
	if m.brailleVisible {
		stats = append(stats, "점자 표시")
	}
	stats = append(stats, "Tab 목록 • Ctrl+R 다시 듣기 • Ctrl+B 점자 저장")

	line := helperStyle.Render(strings.Join(stats, "  •  "))
	if m.errorMessage != "" {
		line = errorStyle.Render(m.errorMessage) + "\n" + line
	}
	return line
}

// liveRegion is the single line a screen reader follows for state changes.
func (m *model) liveRegion() string {
	if m.announcement == "" {
		return ""
	}
	return announceStyle.Render(m.announcement)
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

func indentMultiline(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
