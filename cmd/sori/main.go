package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/sapie-ai/sori/internal/api"
	"github.com/sapie-ai/sori/internal/chat"
	"github.com/sapie-ai/sori/internal/config"
	"github.com/sapie-ai/sori/internal/speech"
	"github.com/sapie-ai/sori/internal/tui"
	"github.com/sapie-ai/sori/internal/voice"
)

func main() {
	_ = godotenv.Load()

	apiURL := flag.String("api-url", "", "override the backend base URL")
	user := flag.String("user", "", "override the conversation user id")
	agent := flag.Int("agent", -1, "initial agent id (0 chat, 1 guide, 5 document)")
	gestureMode := flag.String("gesture-mode", "", "recording gesture: double-tap or hold")
	sessionsFile := flag.String("sessions-file", "", "override the local session snapshot path")
	logFile := flag.String("log-file", "", "override the log file path")
	login := flag.Bool("login", false, "prompt for credentials before starting")
	noAltScreen := flag.Bool("no-alt-screen", false, "disable the alternate screen buffer")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("failed to load configuration:", err)
		os.Exit(1)
	}
	if *apiURL != "" {
		cfg.API.BaseURL = strings.TrimRight(*apiURL, "/")
	}
	if *user != "" {
		cfg.Chat.User = *user
	}
	if *agent >= 0 {
		cfg.Chat.AgentID = *agent
	}
	if *gestureMode != "" {
		cfg.Gesture.Mode = *gestureMode
	}
	if *sessionsFile != "" {
		cfg.Storage.SessionsPath = *sessionsFile
	}
	if *logFile != "" {
		cfg.Storage.LogPath = *logFile
	}

	logger, err := newLogger(cfg.Storage.LogPath)
	if err != nil {
		fmt.Println("failed to open log file:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client := api.NewClient(api.Config{
		BaseURL: cfg.API.BaseURL,
		Logger:  logger,
	})

	if *login {
		if err := promptLogin(client, cfg.Storage.CredentialsPath); err != nil {
			fmt.Println("login failed:", err)
			os.Exit(1)
		}
	}
	authenticate(client, cfg, logger)

	gesture := voice.NewGesture(
		gestureModeFromConfig(cfg.Gesture.Mode),
		cfg.Gesture.DoubleTapThreshold,
		cfg.Gesture.HoldDuration,
	)
	recorder := voice.NewRecorder(voice.CaptureConfig{
		Command:     cfg.Audio.RecorderCommand,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
	}, logger)
	cue := voice.NewCue(cfg.Audio.PlayerCommand, logger)
	speechSvc := speech.NewService(speech.Config{
		Synthesizer: client,
		Player:      cfg.Audio.PlayerCommand,
		Voice:       cfg.Speech.Voice,
		Speed:       cfg.Speech.Speed,
		Format:      cfg.Speech.Format,
		CacheTTL:    cfg.Speech.CacheTTL,
		CacheDir:    cfg.Speech.CacheDir,
		Logger:      logger,
	})
	store := chat.NewStore(client, cfg.Chat.User, cfg.Storage.SessionsPath, logger)

	opts := []tea.ProgramOption{}
	if !*noAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(
		tui.New(tui.Config{
			Client:      client,
			Store:       store,
			Speech:      speechSvc,
			Recorder:    recorder,
			Cue:         cue,
			Gesture:     gesture,
			User:        cfg.Chat.User,
			AgentID:     cfg.Chat.AgentID,
			Language:    cfg.Audio.Language,
			ModelHint:   cfg.Audio.ModelHint,
			DownloadDir: downloadDir(),
			Logger:      logger,
		}),
		opts...,
	)

	if _, err := program.Run(); err != nil {
		fmt.Println("program error:", err)
		os.Exit(1)
	}
}

// authenticate restores saved credentials and verifies them against the
// backend. Verification is bounded: when the server is slow or unreachable
// the cached identity is used so the client still starts offline.
func authenticate(client *api.Client, cfg config.Config, logger *zap.Logger) {
	creds, err := chat.LoadCredentials(cfg.Storage.CredentialsPath)
	if err != nil || creds.Token == "" {
		return
	}
	client.SetToken(creds.Token)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.VerifyTimeout)
	defer cancel()
	if err := client.Verify(ctx); err != nil {
		logger.Warn("token verification failed, continuing with cached identity", zap.Error(err))
	}
}

func promptLogin(client *api.Client, credentialsPath string) error {
	var username string
	fmt.Print("아이디: ")
	if _, err := fmt.Scanln(&username); err != nil {
		return err
	}
	fmt.Print("비밀번호: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	creds, err := client.Login(ctx, username, string(password))
	if err != nil {
		return err
	}
	return chat.SaveCredentials(credentialsPath, chat.Credentials{
		Username: creds.Username,
		Token:    creds.Token,
	})
}

func gestureModeFromConfig(mode string) voice.GestureMode {
	if mode == "hold" {
		return voice.ModeHold
	}
	return voice.ModeDoubleTap
}

func downloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	downloads := filepath.Join(home, "Downloads")
	if info, err := os.Stat(downloads); err == nil && info.IsDir() {
		return downloads
	}
	return home
}

func newLogger(path string) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	level := zapcore.InfoLevel
	if os.Getenv("SORI_DEBUG") == "1" {
		level = zapcore.DebugLevel
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(file),
		level,
	)
	return zap.New(core), nil
}
