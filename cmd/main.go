package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/openbid/auction-server/configs"
	"github.com/openbid/auction-server/internal/auction"
	"github.com/openbid/auction-server/internal/auth"
	"github.com/openbid/auction-server/internal/database"
	"github.com/openbid/auction-server/internal/events"
	"github.com/openbid/auction-server/internal/handlers/rest"
	"github.com/openbid/auction-server/internal/handlers/websocket"
	"github.com/openbid/auction-server/pkg/utils"
)

var (
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
	db database.Service
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Every(5*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Dashboard model: a live auction table and a log viewport.
type model struct {
	table     table.Model
	viewport  viewport.Model
	logBuffer *bytes.Buffer
	logs      []string
	showTable bool
	quitting  bool
}

func (m model) Init() tea.Cmd {
	return tick()
}

func auctionRows() []table.Row {
	auctions, err := db.ListOpenAuctions(context.Background())
	if err != nil {
		log.Error("Error listing auctions: ", err)
		return nil
	}

	now := time.Now()
	rows := make([]table.Row, 0, len(auctions))
	for _, a := range auctions {
		bidder := "-"
		if a.CurrentBidderID != nil {
			bidder = *a.CurrentBidderID
		}

		timeLeft := a.EndTime.Sub(now).Truncate(time.Second).String()
		if !now.Before(a.EndTime) {
			timeLeft = "Ended"
		}

		rows = append(rows, table.Row{
			a.ID,
			string(auction.EffectiveStatus(a, now)),
			formatCents(a.CurrentBid),
			bidder,
			timeLeft,
		})
	}
	return rows
}

func formatCents(amount int) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

func newDashboard() model {
	columns := []table.Column{
		{Title: "AUCTION ID", Width: 36},
		{Title: "STATUS", Width: 10},
		{Title: "CURRENT BID", Width: 12},
		{Title: "HIGHEST BIDDER", Width: 20},
		{Title: "TIME LEFT", Width: 14},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(auctionRows()),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	vp := viewport.New(100, 15)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return model{table: t, showTable: true, viewport: vp}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)
	switch msg := msg.(type) {
	case tickMsg:
		if m.showTable {
			m.table.SetRows(auctionRows())
		} else {
			m.logs = strings.Split(m.logBuffer.String(), "\n")
		}
		cmds = append(cmds, tick())

	case tea.KeyMsg:
		switch msg.String() {
		case "up":
			if !m.showTable {
				m.viewport.LineUp(1)
			}
		case "down":
			if !m.showTable {
				m.viewport.LineDown(1)
			}
		case "tab":
			m.showTable = !m.showTable
			if !m.showTable {
				m.logs = strings.Split(m.logBuffer.String(), "\n")
			}
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	}

	if m.showTable {
		m.table, cmd = m.table.Update(msg)
	} else {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if m.quitting {
		return "Bye!\n"
	}
	if m.showTable {
		return baseStyle.Render(m.table.View()) + "\n" + helpStyle.Render("• tab: switch modes • q: exit\n")
	}

	styledLogs := make([]string, len(m.logs))
	copy(styledLogs, m.logs)
	styledLogs = utils.ColorizeLogs(styledLogs)

	// only show last 15 lines of logs
	if len(styledLogs) > 15 {
		styledLogs = styledLogs[len(styledLogs)-15:]
	}

	m.viewport.SetContent(strings.Join(styledLogs, "\n"))
	return m.viewport.View() + "\n" + helpStyle.Render("• tab: switch modes • q: exit\n")
}

func main() {
	// Load configurations
	cfg, err := configs.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	port := cfg.Server.Port
	if port == "" {
		port = "8080" // Default port if not specified
	}

	// Setup logger
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "debug"
	}
	logLevel, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Error("Invalid log level: ", err)
	}
	log.SetLevel(logLevel)

	// Redirect logs to the dashboard buffer
	logBuffer := new(bytes.Buffer)
	log.SetOutput(logBuffer)

	// Initialize database service
	db = database.New(cfg)
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal("Error running migrations: ", err)
	}

	// Realtime fan-out and optional NATS integration events
	hub := websocket.NewHub()
	notifiers := []auction.Notifier{hub}
	if cfg.Nats.Enabled {
		publisher, err := events.Connect(cfg.Nats.URL)
		if err != nil {
			log.Fatal("Error connecting to NATS: ", err)
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}

	engine := auction.NewEngine(db, auction.CombineNotifiers(notifiers...), cfg.Auction.DefaultMinIncrement)

	// Start the periodic expiry sweep
	sweeper := auction.NewSweeper(db, engine, cfg.Auction.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	// Setup routes
	verifier := auth.NewVerifier(cfg.Auth.SecretKey)
	wsHandler := websocket.NewAuctionHandler(db, engine, hub, verifier, cfg.WebSocket.MaxMessageSize)
	restHandler := rest.NewHandler(engine, db)
	router := rest.NewRouter(restHandler, wsHandler.HandleAuctionWebSocket)

	// Start server in a goroutine
	log.Infof("Server started on port %s", port)
	go func() {
		if err := http.ListenAndServe(":"+port, router); err != nil {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Start the dashboard
	m := newDashboard()
	m.logBuffer = logBuffer
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running dashboard: %v", err)
	}
}
