// Package telegram delivers quizzes to forum threads through the Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"forum-quiz-service/internal/domain"
)

// Requester is the subset of *tgbotapi.BotAPI used here.
type Requester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Sink sends quiz polls. Polls are built from raw parameters because the
// library's SendPollConfig cannot address a forum thread.
type Sink struct {
	api         Requester
	isAnonymous bool
}

func NewSink(api Requester, isAnonymous bool) *Sink {
	return &Sink{api: api, isAnonymous: isAnonymous}
}

func (s *Sink) Send(ctx context.Context, d domain.Dispatch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	params := tgbotapi.Params{
		"chat_id":  d.GroupID,
		"question": d.Question,
		"type":     "quiz",
		// AddNonZero would drop a correct answer at index 0.
		"correct_option_id": strconv.Itoa(d.CorrectIndex),
	}
	params.AddNonZero64("message_thread_id", d.ThreadID)
	params.AddBool("is_anonymous", s.isAnonymous)
	if err := params.AddInterface("options", d.Options); err != nil {
		return 0, err
	}

	resp, err := s.api.MakeRequest("sendPoll", params)
	if err != nil {
		return 0, &domain.SinkError{Err: describe(err)}
	}
	var msg tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return 0, &domain.SinkError{Err: fmt.Errorf("decode sendPoll result: %w", err)}
	}
	return msg.MessageID, nil
}

// StopPoll closes a quiz so it no longer accepts answers.
func (s *Sink) StopPoll(ctx context.Context, groupID string, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return domain.NewValidationError("group_id", fmt.Sprintf("group id %q is not numeric", groupID))
	}
	if _, err := s.api.Request(tgbotapi.NewStopPoll(chatID, messageID)); err != nil {
		return &domain.SinkError{Err: describe(err)}
	}
	return nil
}

// describe adds the flood-control hint the API returns with 429 responses.
func describe(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return fmt.Errorf("%w (retry after %ds)", err, apiErr.RetryAfter)
	}
	return err
}
