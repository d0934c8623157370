package services

import (
	"context"
	"strings"
	"time"

	"github.com/aegislabs/aegis/internal/dialogue"
	"github.com/aegislabs/aegis/internal/models"
	"github.com/aegislabs/aegis/internal/providers/llm"
	mongorepo "github.com/aegislabs/aegis/internal/repositories/mongo"
	"github.com/aegislabs/aegis/internal/tokens"
	"github.com/aegislabs/aegis/internal/utils"
	"github.com/sirupsen/logrus"
)

// TurnResult is the outcome of one completed assistant turn.
type TurnResult struct {
	ConversationID string `json:"conversation_id"`
	Response       string `json:"response"`
	QuestionsAsked int    `json:"questions_asked"`
	Phase          string `json:"phase"`
}

// ChatService runs the auditor dialogue: it gates input length, appends
// the user message, plans the turn from the phase counter, retrieves
// corpus context, calls the model, persists the reply, and advances the
// counter while intake lasts.
type ChatService interface {
	Start(ctx context.Context, userID string) (*models.Conversation, error)
	Turn(ctx context.Context, conversationID, message string) (*TurnResult, error)
	StreamTurn(ctx context.Context, conversationID, message string, emit func(chunk string) error) (*TurnResult, error)
	// TurnLogs lists the audit trail recorded for a conversation's
	// turns, oldest first.
	TurnLogs(ctx context.Context, conversationID string, limit int64) ([]models.TurnLog, error)
}

type chatService struct {
	convos    ConversationService
	retrieval RetrievalService
	provider  llm.Provider
	counter   tokens.Counter
	turnLogs  mongorepo.TurnLogRepository // nil disables turn auditing
	log       *logrus.Logger
}

func NewChatService(
	convos ConversationService,
	retrieval RetrievalService,
	provider llm.Provider,
	counter tokens.Counter,
	turnLogs mongorepo.TurnLogRepository,
	log *logrus.Logger,
) ChatService {
	return &chatService{
		convos:    convos,
		retrieval: retrieval,
		provider:  provider,
		counter:   counter,
		turnLogs:  turnLogs,
		log:       log,
	}
}

func (s *chatService) Start(ctx context.Context, userID string) (*models.Conversation, error) {
	const op = "ChatService.Start"

	conv, err := s.convos.Create(ctx, userID, map[string]any{
		models.MetadataKeyQuestionsAsked: 0,
	})
	if err != nil {
		return nil, err
	}

	msg, err := s.convos.AddMessage(ctx, conv.ID, models.RoleAssistant,
		dialogue.Greeting, s.counter.Count(dialogue.Greeting))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to record greeting", err)
	}

	conv.Messages = append(conv.Messages, *msg)
	conv.UpdatedAt = msg.CreatedAt
	return conv, nil
}

func (s *chatService) Turn(ctx context.Context, conversationID, message string) (*TurnResult, error) {
	return s.turn(ctx, conversationID, message, nil)
}

func (s *chatService) StreamTurn(ctx context.Context, conversationID, message string, emit func(chunk string) error) (*TurnResult, error) {
	return s.turn(ctx, conversationID, message, emit)
}

func (s *chatService) turn(ctx context.Context, conversationID, message string, emit func(chunk string) error) (*TurnResult, error) {
	const op = "ChatService.Turn"

	if strings.TrimSpace(message) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "message is required", nil)
	}

	// Reject oversized input before anything is persisted.
	if !s.counter.WithinLimit(message) {
		return nil, utils.E(utils.CodeTokenLimit, op, "message exceeds token limit", nil)
	}

	conv, err := s.convos.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, utils.E(utils.CodeNotFound, op, "conversation not found", nil)
	}

	questionsAsked := conv.QuestionsAsked()
	msgs := conv.Messages

	if _, err := s.convos.AddMessage(ctx, conv.ID, models.RoleUser, message, s.counter.Count(message)); err != nil {
		return nil, err
	}

	plan := dialogue.Plan(questionsAsked, msgs)

	passages, err := s.retrieval.Retrieve(ctx, message, 0)
	if err != nil {
		s.logTurn(ctx, conv.ID, plan.Phase.String(), 0, 0, 0, "failed")
		return nil, err
	}

	prompt := dialogue.BuildPrompt(plan, FormatPassages(passages), message)

	start := time.Now()
	answer, err := s.generate(ctx, prompt, emit)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		s.logTurn(ctx, conv.ID, plan.Phase.String(), s.counter.Count(prompt), 0, latency, "failed")
		return nil, utils.E(utils.CodeUnavailable, op, "generation failed", err)
	}

	if _, err := s.convos.AddMessage(ctx, conv.ID, models.RoleAssistant, answer, s.counter.Count(answer)); err != nil {
		return nil, err
	}

	finalCount := questionsAsked
	if plan.NextQuestionsAsked != questionsAsked {
		md := make(map[string]any, len(conv.Metadata)+1)
		for k, v := range conv.Metadata {
			md[k] = v
		}
		md[models.MetadataKeyQuestionsAsked] = plan.NextQuestionsAsked
		if err := s.convos.UpdateMetadata(ctx, conv.ID, md); err != nil {
			return nil, err
		}
		finalCount = plan.NextQuestionsAsked
	}

	s.logTurn(ctx, conv.ID, plan.Phase.String(), s.counter.Count(prompt), s.counter.Count(answer), latency, "done")

	return &TurnResult{
		ConversationID: conv.ID,
		Response:       answer,
		QuestionsAsked: finalCount,
		Phase:          plan.Phase.String(),
	}, nil
}

func (s *chatService) generate(ctx context.Context, prompt string, emit func(chunk string) error) (string, error) {
	if emit == nil {
		return s.provider.Generate(ctx, prompt)
	}

	// A failed emit must not strand the producer goroutine: cancel the
	// stream and drain both channels so it can exit.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, errs := s.provider.StreamAnswer(ctx, prompt)
	var b strings.Builder
	for chunk := range chunks {
		b.WriteString(chunk)
		if err := emit(chunk); err != nil {
			cancel()
			for range chunks {
			}
			<-errs
			return "", err
		}
	}
	if err := <-errs; err != nil {
		return "", err
	}
	if b.Len() == 0 {
		return "", utils.E(utils.CodeUnavailable, "ChatService.Turn", "empty model response", nil)
	}
	return b.String(), nil
}

func (s *chatService) TurnLogs(ctx context.Context, conversationID string, limit int64) ([]models.TurnLog, error) {
	const op = "ChatService.TurnLogs"

	if s.turnLogs == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "turn auditing is disabled", nil)
	}
	rows, err := s.turnLogs.ListByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to list turn logs", err)
	}
	return rows, nil
}

// logTurn is best-effort auditing; failures never affect the turn.
func (s *chatService) logTurn(ctx context.Context, conversationID, phase string, promptTokens, responseTokens int, latencyMS int64, status string) {
	if s.turnLogs == nil {
		return
	}
	err := s.turnLogs.Insert(ctx, &models.TurnLog{
		ConversationID: conversationID,
		Phase:          phase,
		PromptTokens:   promptTokens,
		ResponseTokens: responseTokens,
		LatencyMS:      latencyMS,
		Status:         status,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil && s.log != nil {
		s.log.WithField("conversation_id", conversationID).
			WithError(err).Warn("turn log insert failed (ignored)")
	}
}
