package config

import (
	"slices"
	"sort"
)

// Configuration keys.
const (
	KeyMaxTicketRetries  = "max_ticket_retries"
	KeyMaxGraphLoops     = "max_graph_loops"
	KeyMaxParallelCoders = "max_parallel_coders"
	KeyOfflineMode       = "offline_mode"
	KeyMergeOnApproval   = "merge_on_approval"

	KeyStateDir = "state_dir"
	KeyLogDir   = "log_dir"
	KeyRepoPath = "repo_path"
	KeyRemote   = "remote"

	KeyLLMBackend      = "llm_backend"
	KeyAnthropicAPIKey = "anthropic_api_key"
	KeyModel           = "model"
	KeyMaxDiffLines    = "max_diff_lines"

	KeyTester      = "tester"
	KeyTestCommand = "test_command"

	KeyNotifier        = "notifier"
	KeySlackToken      = "slack_token"
	KeySlackChannel    = "slack_channel"
	KeySlackWebhookURL = "slack_webhook_url"
	KeyWebhookURL      = "webhook_url"

	KeyGitToken = "git_token"

	KeyCheckpointStore = "checkpoint_store"
	KeyRedisURL        = "redis_url"

	KeyApprovalSecret  = "approval_secret"
	KeyApprovalAddr    = "approval_addr"
	KeyApprovalDir     = "approval_dir"
	KeyApprovalChannel = "approval_channel"
	KeyNATSURL         = "nats_url"
	KeyNATSToken       = "nats_token"
)

// Enumerated values.
const (
	BackendAnthropic = "anthropic"
	BackendClaudeCLI = "claude-cli"

	TesterLLM   = "llm"
	TesterLocal = "local"

	NotifierLog          = "log"
	NotifierSlack        = "slack"
	NotifierSlackWebhook = "slack-webhook"
	NotifierWebhook      = "webhook"

	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Defaults holds the built-in value of every key. Keys without a useful
// default map to "".
var Defaults = map[string]string{
	KeyMaxTicketRetries:  "3",
	KeyMaxGraphLoops:     "5",
	KeyMaxParallelCoders: "4",
	KeyOfflineMode:       "false",
	KeyMergeOnApproval:   "false",

	KeyStateDir: ".pipeline",
	KeyLogDir:   "logs",
	KeyRepoPath: ".",
	KeyRemote:   "origin",

	KeyLLMBackend:      BackendAnthropic,
	KeyAnthropicAPIKey: "",
	KeyModel:           "",
	KeyMaxDiffLines:    "400",

	KeyTester:      TesterLLM,
	KeyTestCommand: "go test -v -cover ./...",

	KeyNotifier:        NotifierLog,
	KeySlackToken:      "",
	KeySlackChannel:    "",
	KeySlackWebhookURL: "",
	KeyWebhookURL:      "",

	KeyGitToken: "",

	KeyCheckpointStore: StoreFile,
	KeyRedisURL:        "redis://127.0.0.1:6379",

	KeyApprovalSecret:  "",
	KeyApprovalAddr:    "127.0.0.1:8087",
	KeyApprovalDir:     ".pipeline/approvals",
	KeyApprovalChannel: "pipeline.approvals",
	KeyNATSURL:         "nats://127.0.0.1:4222",
	KeyNATSToken:       "",
}

// envAliases are conventional variable names read when the PIPELINE_
// variable is unset.
var envAliases = map[string][]string{
	KeyAnthropicAPIKey: {"ANTHROPIC_API_KEY"},
	KeySlackToken:      {"SLACK_BOT_TOKEN"},
	KeySlackWebhookURL: {"SLACK_WEBHOOK_URL"},
	KeyGitToken:        {"GITHUB_TOKEN", "GITLAB_TOKEN", "GIT_TOKEN"},
	KeyRedisURL:        {"REDIS_URL"},
	KeyNATSURL:         {"NATS_URL"},
}

var secretKeys = []string{
	KeyAnthropicAPIKey,
	KeySlackToken,
	KeyGitToken,
	KeyApprovalSecret,
	KeyNATSToken,
}

// Keys returns every known key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(Defaults))
	for k := range Defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsKnown reports whether key is a configuration key.
func IsKnown(key string) bool {
	_, ok := Defaults[key]
	return ok
}

// IsSecret reports whether key holds a credential that should be masked
// when displayed.
func IsSecret(key string) bool {
	return slices.Contains(secretKeys, key)
}

// Mask hides all but the last four characters of a secret value.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
