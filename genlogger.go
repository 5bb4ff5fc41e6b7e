package docquiz

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Package-wide verbose gate, set once at startup by the binaries.
var verboseMode bool

// SetVerbose toggles verbose logging.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// VerboseLog writes to the process log only in verbose mode.
func VerboseLog(format string, v ...interface{}) {
	if verboseMode {
		log.Printf(format, v...)
	}
}

// GenerationLogger writes one file per generation run: sampling
// decisions, backend requests and responses, screening outcomes, and
// the final diagnostics.
type GenerationLogger struct {
	file   *os.File
	mu     sync.Mutex
	quizID string
}

// NewGenerationLogger creates a logger under dir (created when absent)
// named after the quiz being generated.
func NewGenerationLogger(dir, quizID string, scope string, difficulty Difficulty) (*GenerationLogger, error) {
	if dir == "" {
		dir = "log"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.Create(filepath.Join(dir, fmt.Sprintf("%s.log", quizID)))
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &GenerationLogger{file: file, quizID: quizID}
	logger.Logf("=== Quiz Generation Log ===\n")
	logger.Logf("Quiz ID: %s\n", quizID)
	logger.Logf("Scope: %s\n", scope)
	logger.Logf("Difficulty: %s\n", difficulty)
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("========================\n\n")
	return logger, nil
}

// Logf writes a formatted log entry with timestamp
func (gl *GenerationLogger) Logf(format string, args ...interface{}) {
	gl.mu.Lock()
	defer gl.mu.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(gl.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	gl.file.Sync()
}

// LogSamplePass records one sampler pass outcome.
func (gl *GenerationLogger) LogSamplePass(reason SampleReason, selected, total int) {
	gl.Logf("sample pass %s: %d selected (%d total so far)\n", reason, selected, total)
}

// LogLLMRequest logs a generation backend request.
func (gl *GenerationLogger) LogLLMRequest(module, prompt string) {
	gl.Logf("=== LLM REQUEST (%s) ===\n%s\n=====================\n\n", module, prompt)
}

// LogLLMResponse logs a generation backend response.
func (gl *GenerationLogger) LogLLMResponse(module, response string) {
	gl.Logf("=== LLM RESPONSE (%s) ===\n%s\n======================\n\n", module, response)
}

// LogScreenResult records why a draft was dropped (detail may be empty).
func (gl *GenerationLogger) LogScreenResult(prompt, reason, detail string) {
	if detail != "" {
		gl.Logf("screened out [%s]: %q (%s)\n", reason, prompt, detail)
		return
	}
	gl.Logf("screened out [%s]: %q\n", reason, prompt)
}

// LogDiagnostics writes the run's final counters.
func (gl *GenerationLogger) LogDiagnostics(diag DocumentQuizDiagnostics) {
	gl.Logf("diagnostics: snippets=%d approxTokens=%d coverage=%.2f application=%.2f drops={structural:%d redundant:%d literal:%d} intents={scenario:%d conceptual:%d recall:%d}\n",
		diag.SnippetCount, diag.ApproxTokenCount, diag.CoverageRatio, diag.ApplicationRatio,
		diag.DropCounts.Structural, diag.DropCounts.Redundant, diag.DropCounts.Literal,
		diag.IntentCounts.Scenario, diag.IntentCounts.Conceptual, diag.IntentCounts.Recall)
}

// Close closes the log file.
func (gl *GenerationLogger) Close() error {
	gl.mu.Lock()
	defer gl.mu.Unlock()
	if gl.file != nil {
		err := gl.file.Close()
		gl.file = nil
		return err
	}
	return nil
}
