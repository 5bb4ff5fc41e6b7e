package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"docquiz"

	"github.com/joho/godotenv"
)

func main() {
	var (
		pdfPath    = flag.String("pdf", "", "PDF file to ingest (required unless -quiz is set)")
		title      = flag.String("title", "", "Document title (default: file name)")
		topicID    = flag.String("topic", "", "Generate for a single topic/subtopic id instead of the whole document")
		perTopic   = flag.Bool("per-topic", false, "Generate one quiz per top-level topic")
		difficulty = flag.String("difficulty", "medium", "Difficulty level (easy, medium, hard)")
		quizID     = flag.String("quiz", "", "Open an existing quiz instead of generating one")
		dbPath     = flag.String("db", "", "SQLite database path (default: DB_PATH or ./docquiz.db)")
		user       = flag.String("user", "cli", "User id to act as")
		outputFile = flag.String("output", "", "Output file for quiz JSON (default: stdout)")
		playMode   = flag.Bool("play", false, "Play the quiz interactively and submit the attempt")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)

	flag.Parse()

	_ = godotenv.Load()
	docquiz.SetVerbose(*verbose)

	cfg := docquiz.FromEnv()
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if cfg.OpenAIKey == "" && *quizID == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}

	db, err := docquiz.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.CloseDB()

	if err := db.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	svc := buildService(db, cfg)
	ctx, cancel := context.WithTimeout(docquiz.WithUser(context.Background(), *user), 10*time.Minute)
	defer cancel()

	if *quizID == "" {
		if *pdfPath == "" {
			log.Fatal("A PDF is required. Use -pdf flag (or -quiz to open an existing quiz).")
		}
		*quizID = ingestAndGenerate(ctx, svc, *pdfPath, *title, *topicID, *perTopic, docquiz.Difficulty(*difficulty))
		if *quizID == "" {
			return // per-topic mode prints its own summary
		}
	}

	opened, err := svc.OpenQuiz(ctx, *quizID)
	if err != nil {
		log.Fatalf("Failed to open quiz: %v", err)
	}

	if *playMode {
		playQuiz(ctx, svc, opened)
		return
	}

	output, err := json.MarshalIndent(opened, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal quiz: %v", err)
	}
	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, output, 0644); err != nil {
			log.Fatalf("Failed to write output file: %v", err)
		}
		log.Printf("Quiz saved to: %s", *outputFile)
	} else {
		fmt.Println(string(output))
	}
}

func buildService(db *docquiz.DB, cfg docquiz.Config) *docquiz.Service {
	embedder, err := docquiz.NewEmbedder(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	drafter, err := docquiz.NewOpenAIDrafter(cfg.OpenAIKey, cfg.OpenAIBaseURL, "")
	if err != nil {
		log.Fatalf("Failed to create drafter: %v", err)
	}
	cache := docquiz.NewChunkCache(16, 5*time.Minute, nil)
	return docquiz.NewService(db, docquiz.ContextResolver{}, embedder, drafter, cache)
}

// ingestAndGenerate uploads the PDF and generates a quiz, returning the
// quiz id ("" in per-topic mode, which reports all created quizzes
// itself).
func ingestAndGenerate(ctx context.Context, svc *docquiz.Service, pdfPath, title, topicID string, perTopic bool, difficulty docquiz.Difficulty) string {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		log.Fatalf("Failed to read PDF: %v", err)
	}
	if title == "" {
		title = strings.TrimSuffix(pdfPath[strings.LastIndex(pdfPath, "/")+1:], ".pdf")
	}

	ingested, err := svc.IngestDocument(ctx, title, data)
	if err != nil {
		log.Fatalf("Failed to ingest document: %v", err)
	}
	log.Printf("Ingested %q: %d pages, %d chunks", title, ingested.Document.PageCount, ingested.ChunkCount)

	if perTopic {
		results, err := svc.GenerateTopicQuizzes(ctx, ingested.Document.ID, difficulty)
		if err != nil {
			log.Fatalf("Failed to generate topic quizzes: %v", err)
		}
		for _, result := range results {
			fmt.Printf("%s  %s (%d questions)\n", result.QuizID, result.Title, result.Count)
		}
		return ""
	}

	if topicID != "" {
		result, err := svc.GenerateTopicQuiz(ctx, ingested.Document.ID, topicID, difficulty)
		if err != nil {
			log.Fatalf("Failed to generate topic quiz: %v", err)
		}
		return result.QuizID
	}

	result, err := svc.GenerateQuiz(ctx, docquiz.GenerateQuizRequest{
		DocumentIDs: []string{ingested.Document.ID},
		Difficulty:  difficulty,
	})
	if err != nil {
		log.Fatalf("Failed to generate quiz: %v", err)
	}
	return result.QuizID
}

func playQuiz(ctx context.Context, svc *docquiz.Service, opened docquiz.OpenQuizResult) {
	fmt.Printf("🎯 %s\n", opened.Title)
	fmt.Printf("📝 %d questions\n\n", len(opened.Quiz.Questions))

	scanner := bufio.NewScanner(os.Stdin)
	answers := make([]docquiz.SubmittedAnswer, 0, len(opened.Quiz.Questions))

	for i, question := range opened.Quiz.Questions {
		fmt.Printf("Question %d/%d:\n%s\n\n", i+1, len(opened.Quiz.Questions), question.Prompt)
		for _, opt := range question.Options {
			fmt.Printf("%s) %s\n", opt.Label, opt.Text)
		}
		fmt.Println()

		var choice *string
		for {
			fmt.Print("Your answer (A/B/C/D, enter to skip): ")
			scanner.Scan()
			raw := strings.ToUpper(strings.TrimSpace(scanner.Text()))
			if raw == "" {
				break
			}
			if opt, ok := optionByLabel(question.Options, raw); ok {
				choice = &opt.ID
				break
			}
			fmt.Println("Please enter A, B, C, or D")
		}
		answers = append(answers, docquiz.SubmittedAnswer{QuestionID: question.ID, ChosenOptionID: choice})
		fmt.Println()
	}

	result, err := svc.SubmitQuizAttempt(ctx, opened.Quiz.QuizID, answers)
	if err != nil {
		log.Fatalf("Failed to submit attempt: %v", err)
	}

	fmt.Println("🎉 Quiz completed!")
	fmt.Printf("📊 Score: %d/%d (%d%%)\n\n", result.CorrectCount, result.Total, result.Score)
	for i, answer := range result.Answers {
		if answer.IsCorrect {
			fmt.Printf("✅ Question %d: correct\n", i+1)
			continue
		}
		fmt.Printf("❌ Question %d: incorrect\n", i+1)
		if answer.Feedback != "" {
			fmt.Printf("💡 %s\n", answer.Feedback)
		}
	}
}

func optionByLabel(options []docquiz.Option, label string) (docquiz.Option, bool) {
	for _, opt := range options {
		if opt.Label == label {
			return opt, true
		}
	}
	return docquiz.Option{}, false
}
