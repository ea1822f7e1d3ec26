package telegram

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"forum-quiz-service/internal/app"
	"forum-quiz-service/internal/domain"
)

const helpText = `Welcome to the forum quiz bot!
Commands:
/start - List commands
/setgroup <group_id> - Set group for quizzes
/listtopics - List topics
/addtopic <name> <thread_id> - Add topic
/removetopic <name> - Remove a topic
/addquiz topic | question | option1 | option2 | ... | correct_option_index - Add a quiz
/clearresponses - Close active quizzes
Upload a JSON or YAML file to add quizzes in bulk.`

const (
	usageSetGroup    = "Usage: /setgroup <group_id>"
	usageAddTopic    = "Usage: /addtopic <topic_name> <thread_id>"
	usageRemoveTopic = "Usage: /removetopic <topic_name>"
	usageAddQuiz     = "Usage: /addquiz topic | question | option1 | option2 | ... | correct_option_index"
)

var errUsage = errors.New("usage")

// parseAddTopic reads "<name> <thread_id>". The name may contain spaces.
func parseAddTopic(args string) (string, int64, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return "", 0, errUsage
	}
	thread, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return "", 0, domain.NewValidationError("thread_id", "Topic ID must be a number.")
	}
	return strings.Join(fields[:len(fields)-1], " "), thread, nil
}

// parseAddQuiz reads "topic | question | option... | index".
func parseAddQuiz(args string) (string, domain.Quiz, error) {
	parts := strings.Split(args, "|")
	if len(parts) < 5 {
		return "", domain.Quiz{}, errUsage
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	idx, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", domain.Quiz{}, domain.NewValidationError("correct_option", "Invalid correct option index.")
	}
	return parts[0], domain.Quiz{
		Question:      parts[1],
		Options:       parts[2 : len(parts)-1],
		CorrectOption: idx,
	}, nil
}

func formatTopics(topics []domain.Topic) string {
	if len(topics) == 0 {
		return "Available topics:\nNo topics found."
	}
	lines := make([]string, 0, len(topics))
	for _, t := range topics {
		lines = append(lines, fmt.Sprintf("%s: %d", t.Name, t.ThreadID))
	}
	return "Available topics:\n" + strings.Join(lines, "\n")
}

func formatSummary(s domain.ImportSummary) string {
	topics := make([]string, 0, len(s.Accepted))
	for topic := range s.Accepted {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	var b strings.Builder
	b.WriteString("Bulk upload summary:")
	for _, topic := range topics {
		fmt.Fprintf(&b, "\n%s: %d added", topic, s.Accepted[topic])
	}
	fmt.Fprintf(&b, "\nFailed: %d", s.Failed)
	if len(s.FailuresByKind) > 0 {
		kinds := make([]string, 0, len(s.FailuresByKind))
		for kind, n := range s.FailuresByKind {
			kinds = append(kinds, fmt.Sprintf("%s %d", kind, n))
		}
		sort.Strings(kinds)
		fmt.Fprintf(&b, " (%s)", strings.Join(kinds, ", "))
	}
	if s.Canceled {
		b.WriteString("\nImport was interrupted.")
	}
	return b.String()
}

func formatClear(res app.ClearResult) string {
	if res.Failed > 0 {
		return fmt.Sprintf("Closed %d active quizzes, %d could not be closed.", res.Stopped, res.Failed)
	}
	return fmt.Sprintf("All active quiz responses have been reset! (%d closed)", res.Stopped)
}

// reason turns an error into the text shown to the user.
func reason(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNoCurrentGroup):
		return "Group ID is not set. Use /setgroup first."
	case errors.Is(err, domain.ErrTopicNotFound):
		return "Topic not found."
	case errors.Is(err, domain.ErrGroupNotFound):
		return "Group not found. Use /setgroup first."
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, domain.ErrMalformedBatch):
		return "Invalid batch file: the document must be a list of quizzes."
	}
	switch domain.KindOf(err) {
	case domain.KindPersistence:
		return "Could not save changes, please try again."
	case domain.KindSink:
		return "Telegram rejected the quiz: " + err.Error()
	case domain.KindCanceled:
		return "Operation interrupted."
	default:
		return "Something went wrong."
	}
}
