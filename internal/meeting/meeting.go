// Package meeting implements the meeting-room reservation dialogue. It is a
// slot-filling flow decoupled from retrieval: a classification prompt picks
// the request type, a fill prompt extracts parameters from each utterance,
// and accumulated parameters persist per conversation until the request is
// complete enough to call the reservation API.
package meeting

import (
	"context"
	"fmt"
	"strings"

	"github.com/resourceburglar/localqa/internal/llm"
	"github.com/resourceburglar/localqa/internal/log"
)

const triggerKeyword = "会议室"

const controlPrompt = `下面我将给你一段与会议室服务系统对话的请求语句，请识别这句话的请求类型，请求类型编码要求如下：
获取会议室清单=2，查看会议室空闲时段=4，预订会议室=5，取消预订=6，获取会议室位置信息=7
只用返回请求类型的编码数字，其他信息不需要。
会议室服务系统请求语句：%s
请识别请求类型。`

const fillPrompt = `你需要帮我填充一个会议室服务请求所需要的参数，该请求所需要的参数模板解释和要求如下：
%s
我现在已经有了部分请求参数的字典，和一段补充或修改信息的语句，帮我提取这段语句中的信息补充或修改到这个请求参数字典中。
已有部分请求参数的字典如下：
%s
补充或修改信息语句如下：
%s
只用补充请求需要并且补充语句中有信息的参数，其他信息不需要，如果还没有值，保持null。
请识别信息并将填充后的字典以JSON返回，只用返回字典。`

// Sessions persists per-conversation slot state between turns.
type Sessions interface {
	Get(ctx context.Context, conversationID string) (map[string]string, error)
	Save(ctx context.Context, conversationID string, slots map[string]string) error
	Delete(ctx context.Context, conversationID string) error
}

// Outcome is the reply of one meeting dialogue turn.
type Outcome struct {
	Answer string
	Scene  string
	// Done is true when the request was submitted and the session cleared.
	Done bool
}

// Service drives the meeting-room dialogue.
type Service struct {
	completer llm.Completer
	sessions  Sessions
	client    *Client
	logger    log.Logger
}

// NewService creates a meeting dialogue service.
func NewService(completer llm.Completer, sessions Sessions, client *Client, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{completer: completer, sessions: sessions, client: client, logger: logger}
}

// Handles reports whether a question belongs to the meeting dialogue.
func (s *Service) Handles(question string) bool {
	return strings.Contains(question, triggerKeyword)
}

// Respond advances the slot-filling dialogue by one turn. The utterance is
// classified, merged into the conversation's accumulated parameters, and
// either submitted to the reservation API or answered with a follow-up
// question naming the parameters still missing.
func (s *Service) Respond(ctx context.Context, conversationID, question string) (*Outcome, error) {
	controlType, err := s.classify(ctx, question)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("classified meeting request", "conversation", conversationID, "control_type", controlType)

	slots, err := s.sessions.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		slots = defaultSlots(controlType)
	}

	if len(slotTemplates[controlType]) > 0 {
		extracted, err := s.fill(ctx, controlType, question, slots)
		if err != nil {
			return nil, err
		}
		mergeSlots(slots, extracted)
	}

	missing := missingSlots(controlType, slots)
	if len(missing) > 0 {
		if err := s.sessions.Save(ctx, conversationID, slots); err != nil {
			return nil, err
		}
		return &Outcome{Answer: followUp(controlType, missing), Scene: "meeting_room"}, nil
	}

	answer, err := s.submit(ctx, controlType, slots)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Delete(ctx, conversationID); err != nil {
		s.logger.Warn("failed to clear meeting session", "conversation", conversationID, "error", err)
	}
	return &Outcome{Answer: answer, Scene: "meeting_room", Done: true}, nil
}

func (s *Service) classify(ctx context.Context, question string) (int, error) {
	reply, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Prompt: fmt.Sprintf(controlPrompt, question),
	})
	if err != nil {
		return 0, fmt.Errorf("classify meeting request: %w", err)
	}
	return parseControlType(reply)
}

func (s *Service) fill(ctx context.Context, controlType int, question string, slots map[string]string) (map[string]string, error) {
	reply, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Prompt: fmt.Sprintf(fillPrompt, slotTemplateText(controlType), renderSlots(slots), question),
	})
	if err != nil {
		return nil, fmt.Errorf("fill meeting parameters: %w", err)
	}
	extracted, err := extractSlots(reply)
	if err != nil {
		s.logger.Warn("unparseable parameter reply, keeping prior slots", "error", err)
		return map[string]string{}, nil
	}
	return extracted, nil
}

// submit dispatches a complete request to the reservation backend. Only the
// free-slot query is backed by an API endpoint today; the other request
// types reply that online submission is unavailable instead of failing the
// turn.
func (s *Service) submit(ctx context.Context, controlType int, slots map[string]string) (string, error) {
	switch controlType {
	case ControlFreeSlots:
		return s.client.FreeRooms(ctx, slots)
	default:
		s.logger.Debug("meeting request type has no submission backend", "control_type", controlType)
		return unsupportedReply(controlType), nil
	}
}

// unsupportedReply names the recognized request so the user knows it was
// understood but cannot be completed here.
func unsupportedReply(controlType int) string {
	return fmt.Sprintf("已识别您的请求（%s），该操作暂不支持在线办理，请联系会议室管理员处理。", controlName(controlType))
}

// followUp asks the user for the parameters still missing, using their
// template descriptions.
func followUp(controlType int, missing []string) string {
	var b strings.Builder
	b.WriteString("请补充以下会议室请求信息：\n")
	for _, name := range missing {
		fmt.Fprintf(&b, "- %s\n", slotDesc(controlType, name))
	}
	return b.String()
}

func renderSlots(slots map[string]string) string {
	var b strings.Builder
	b.WriteString("{")
	for i, name := range sortedSlotNames(slots) {
		if i > 0 {
			b.WriteString(", ")
		}
		v := slots[name]
		if v == "" {
			fmt.Fprintf(&b, "%q: null", name)
		} else {
			fmt.Fprintf(&b, "%q: %q", name, v)
		}
	}
	b.WriteString("}")
	return b.String()
}
