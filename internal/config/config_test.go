package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
platform: whatsapp
default_timezone: America/Manaus
dashboard_url: https://app.example.com

database:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  user: bot
  password: secret
  name: taskline_prod

whatsapp:
  session_path: /var/lib/taskline/wa.db
  listen_addr: ":9000"

ai:
  provider: openai
  api_key: sk-test
  model: gpt-4o-mini
  vision_model: gpt-4o-mini
  transcription_model: whisper-1

audio:
  ffmpeg_path: /opt/bin/ffmpeg
  temp_dir: /tmp/taskline

conversation:
  history_limit: 12
  prune_keep: 200
  menu_after_chat: true

pending:
  ttl_minutes: 5

scheduler:
  cron: "*/2 * * * *"
  lookahead_sec: 30

log:
  level: debug
  format: json
`

const minimalYAML = `
whatsapp:
  session_path: wa.db
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DefaultTimezone != "America/Manaus" {
		t.Errorf("DefaultTimezone = %q, want America/Manaus", cfg.DefaultTimezone)
	}
	if cfg.Database.Driver != "mysql" || cfg.Database.Host != "10.0.0.5" || cfg.Database.Port != 3307 {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Database.Name != "taskline_prod" {
		t.Errorf("Database.Name = %q, want taskline_prod", cfg.Database.Name)
	}
	if cfg.WhatsApp.SessionPath != "/var/lib/taskline/wa.db" {
		t.Errorf("WhatsApp.SessionPath = %q", cfg.WhatsApp.SessionPath)
	}
	if cfg.WhatsApp.ListenAddr != ":9000" {
		t.Errorf("WhatsApp.ListenAddr = %q, want :9000", cfg.WhatsApp.ListenAddr)
	}
	if cfg.AI.Provider != "openai" || cfg.AI.Model != "gpt-4o-mini" {
		t.Errorf("AI = %+v", cfg.AI)
	}
	if cfg.Conversation.HistoryLimit != 12 {
		t.Errorf("HistoryLimit = %d, want 12", cfg.Conversation.HistoryLimit)
	}
	if !cfg.Conversation.MenuAfterChat {
		t.Error("MenuAfterChat = false, want true")
	}
	if cfg.PendingTTL() != 5*time.Minute {
		t.Errorf("PendingTTL = %v, want 5m", cfg.PendingTTL())
	}
	if cfg.Lookahead() != 30*time.Second {
		t.Errorf("Lookahead = %v, want 30s", cfg.Lookahead())
	}
	if cfg.Scheduler.Cron != "*/2 * * * *" {
		t.Errorf("Scheduler.Cron = %q", cfg.Scheduler.Cron)
	}
}

func TestParse_MinimalDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Platform", cfg.Platform, "whatsapp"},
		{"DefaultTimezone", cfg.DefaultTimezone, "America/Sao_Paulo"},
		{"Database.Driver", cfg.Database.Driver, "sqlite"},
		{"Database.Path", cfg.Database.Path, "taskline.db"},
		{"WhatsApp.ListenAddr", cfg.WhatsApp.ListenAddr, ":4000"},
		{"AI.Provider", cfg.AI.Provider, "gemini"},
		{"AI.Language", cfg.AI.Language, "pt"},
		{"AI.TimeoutSec", cfg.AI.TimeoutSec, 60},
		{"Audio.FFmpegPath", cfg.Audio.FFmpegPath, "ffmpeg"},
		{"Conversation.HistoryLimit", cfg.Conversation.HistoryLimit, 30},
		{"Pending.TTLMinutes", cfg.Pending.TTLMinutes, 15},
		{"Scheduler.Cron", cfg.Scheduler.Cron, "* * * * *"},
		{"Scheduler.LookaheadSec", cfg.Scheduler.LookaheadSec, 60},
		{"Log.Level", cfg.Log.Level, "info"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + "database:\n  driver: mysql\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "127.0.0.1" || cfg.Database.Port != 3306 {
		t.Errorf("host/port = %s:%d, want 127.0.0.1:3306", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.Database.User != "root" || cfg.Database.Name != "taskline" {
		t.Errorf("user/name = %s/%s, want root/taskline", cfg.Database.User, cfg.Database.Name)
	}
}

func TestParse_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("TASKLINE_AI_API_KEY", "from-env")
	t.Setenv("TASKLINE_WHATSAPP_SESSION_PATH", "/data/wa.db")

	cfg, err := Parse([]byte(minimalYAML + "ai:\n  api_key: from-file\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AI.APIKey != "from-env" {
		t.Errorf("AI.APIKey = %q, want from-env", cfg.AI.APIKey)
	}
	if cfg.WhatsApp.SessionPath != "/data/wa.db" {
		t.Errorf("WhatsApp.SessionPath = %q, want /data/wa.db", cfg.WhatsApp.SessionPath)
	}
}

func TestParse_EnvKeepsFileValuesWhenUnset(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + "ai:\n  api_key: from-file\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AI.APIKey != "from-file" {
		t.Errorf("AI.APIKey = %q, want from-file", cfg.AI.APIKey)
	}
}

func TestParse_EnvSatisfiesRequiredToken(t *testing.T) {
	t.Setenv("TASKLINE_DISCORD_BOT_TOKEN", "bot-from-env")

	cfg, err := Parse([]byte("platform: discord\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.BotToken != "bot-from-env" {
		t.Errorf("Discord.BotToken = %q, want bot-from-env", cfg.Discord.BotToken)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"session shares db file", "whatsapp:\n  session_path: taskline.db\n", "whatsapp.session_path must differ"},
		{"bad platform", "platform: telegram\n", `platform "telegram"`},
		{"bad driver", minimalYAML + "database:\n  driver: oracle\n", `database.driver "oracle"`},
		{"bad provider", minimalYAML + "ai:\n  provider: llama\n", `ai.provider "llama"`},
		{"bad timezone", minimalYAML + "default_timezone: Mars/Olympus\n", "default_timezone"},
		{"discord token", "platform: discord\n", "discord.bot_token is required"},
		{"slack tokens", "platform: slack\n", "slack.app_token is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("platform: [unterminated"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want config: parse prefix", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskline.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WhatsApp.SessionPath != "wa.db" {
		t.Errorf("SessionPath = %q, want wa.db", cfg.WhatsApp.SessionPath)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
