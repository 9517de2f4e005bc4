package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"

	"mavgate/pkg/envelope"
)

func monitorCommand() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Connect to a running gateway and watch the telemetry stream",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Value: "ws://127.0.0.1:8765/ws",
				Usage: "gateway WebSocket URL",
			},
		},
		Action: runMonitor,
	}
}

func runMonitor(c *cli.Context) error {
	conn, _, err := websocket.DefaultDialer.Dial(c.String("url"), nil)
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	defer conn.Close()

	// The gateway pushes a snapshot on connect; asking again costs nothing
	// and covers older gateways that do not.
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"GET_STATE"}`))

	envelopes := make(chan envelope.Envelope, 32)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var env envelope.Envelope
			if json.Unmarshal(raw, &env) == nil {
				envelopes <- env
			}
		}
	}()

	model := monitorModel{
		url:       c.String("url"),
		conn:      conn,
		envelopes: envelopes,
		readErr:   readErr,
		counts:    make(map[string]int),
	}
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

type monitorModel struct {
	url       string
	conn      *websocket.Conn
	envelopes chan envelope.Envelope
	readErr   chan error

	state    map[string]any
	counts   map[string]int
	total    int
	lastType string
	pingSent time.Time
	rtt      time.Duration
	err      error
}

type envelopeMsg envelope.Envelope

type readErrMsg error

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.waitForEnvelope(), m.waitForError())
}

func (m monitorModel) waitForEnvelope() tea.Cmd {
	return func() tea.Msg {
		return envelopeMsg(<-m.envelopes)
	}
}

func (m monitorModel) waitForError() tea.Cmd {
	return func() tea.Msg {
		return readErrMsg(<-m.readErr)
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p":
			m.pingSent = time.Now()
			_ = m.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"PING"}`))
		case "s":
			_ = m.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"GET_STATE"}`))
		}
		return m, nil

	case envelopeMsg:
		env := envelope.Envelope(msg)
		m.total++
		m.counts[env.Type]++
		m.lastType = env.Type
		switch env.Type {
		case envelope.TypeDroneState:
			if data, ok := env.Data.(map[string]any); ok {
				m.state = data
			}
		case envelope.TypePong:
			if !m.pingSent.IsZero() {
				m.rtt = time.Since(m.pingSent)
			}
		}
		return m, m.waitForEnvelope()

	case readErrMsg:
		m.err = msg
		return m, nil
	}
	return m, nil
}

func (m monitorModel) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mavgate monitor - %s\n", m.url)
	if m.err != nil {
		fmt.Fprintf(&b, "connection lost: %v\n", m.err)
	}
	fmt.Fprintf(&b, "envelopes: %d   last: %s", m.total, m.lastType)
	if m.rtt > 0 {
		fmt.Fprintf(&b, "   rtt: %s", m.rtt.Round(time.Microsecond))
	}
	b.WriteString("\n\n")

	types := make([]string, 0, len(m.counts))
	for t := range m.counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(&b, "  %-24s %d\n", t, m.counts[t])
	}

	if len(m.state) > 0 {
		b.WriteString("\ndrone state:\n")
		groups := make([]string, 0, len(m.state))
		for g := range m.state {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		for _, g := range groups {
			raw, err := json.Marshal(m.state[g])
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "  %-10s %s\n", g, raw)
		}
	}

	b.WriteString("\n[p] ping   [s] refresh state   [q] quit\n")
	return b.String()
}
