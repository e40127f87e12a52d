package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/pcoscare/companion/internal/chatstream"
	"github.com/pcoscare/companion/internal/model/analysis"
	"github.com/pcoscare/companion/internal/model/chat"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1).
			MarginBottom(1)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	verdictStyle = lipgloss.NewStyle().
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2)
)

func renderTranscript(state chatstream.State) string {
	var b strings.Builder
	title := "Transcript"
	if state.SessionID != "" {
		title += " · session " + state.SessionID
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")

	for _, m := range state.Transcript {
		label := assistantMessageStyle.Render("Assistant")
		if m.Sender == chat.SenderUser {
			label = userMessageStyle.Render("You")
		}
		b.WriteString(label)
		if !m.CreatedAt.IsZero() {
			b.WriteString(" " + metaStyle.Render(m.CreatedAt.Local().Format("15:04:05")))
		}
		if m.AudioAttachment != nil {
			b.WriteString(" " + metaStyle.Render(fmt.Sprintf("[voice %s, %d bytes]", m.AudioAttachment.Format, m.AudioAttachment.Size)))
		}
		b.WriteString("\n")
		b.WriteString(messageContentStyle.Render(m.Content))
		b.WriteString("\n")
	}
	return b.String()
}

func renderPrediction(p *analysis.Prediction) string {
	color := lipgloss.Color("42")
	if p.Label == analysis.LabelInfected {
		color = lipgloss.Color("196")
	}
	var b strings.Builder
	b.WriteString(verdictStyle.BorderForeground(color).Foreground(color).Render(strings.ToUpper(p.Label)))
	b.WriteString("\n")
	b.WriteString(metaStyle.Render(fmt.Sprintf("classifier said %s with probability %.4f", p.RawLabel, p.Probability)))
	b.WriteString("\n")
	if !p.Confident {
		b.WriteString(metaStyle.Render("below the confidence threshold, label flipped"))
		b.WriteString("\n")
	}
	if p.GradcamHeatmap != "" {
		b.WriteString(metaStyle.Render(fmt.Sprintf("heatmap attached (%d base64 chars)", len(p.GradcamHeatmap))))
		b.WriteString("\n")
	}
	return b.String()
}

type transcriptExport struct {
	Endpoint   string         `yaml:"endpoint"`
	SessionID  string         `yaml:"session_id,omitempty"`
	ExportedAt time.Time      `yaml:"exported_at"`
	Messages   []chat.Message `yaml:"messages"`
}

func exportTranscript(w io.Writer, endpoint string, state chatstream.State) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()

	return enc.Encode(transcriptExport{
		Endpoint:   endpoint,
		SessionID:  state.SessionID,
		ExportedAt: time.Now().UTC(),
		Messages:   state.Transcript,
	})
}
