package agent

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/goosehq/goose/internal/event"
	"github.com/goosehq/goose/internal/monitor"
	"github.com/goosehq/goose/internal/permission"
	"github.com/goosehq/goose/internal/provider"
	"github.com/goosehq/goose/internal/sessionlog"
	"github.com/goosehq/goose/pkg/types"
)

// End-to-end reply-loop scenarios driven through a scripted provider and
// the bundled developer extension.
var _ = Describe("Reply loop", func() {
	var h *testHarness

	run := func(initial string, session *SessionConfig) []types.Message {
		events, err := h.agent.Reply(context.Background(), []types.Message{userText(initial)}, session)
		Expect(err).NotTo(HaveOccurred())
		return messagesOf(collect(GinkgoT(), events))
	}

	Describe("a single turn with no tools", func() {
		BeforeEach(func() {
			GinkgoT().Setenv("GOOSE_MODE", "auto")
			hello := assistantText("hello")
			h = newHarness(GinkgoT(), []scriptedReply{
				{message: &hello, usage: types.Usage{TotalTokens: 5}},
			})
		})

		It("yields the text and accounts usage", func() {
			messages := run("say hi", &SessionConfig{ID: "20250101_000002"})

			Expect(messages).To(HaveLen(1))
			Expect(messages[0].Role).To(Equal(types.RoleAssistant))
			Expect(messages[0].Content[0].Text.Text).To(Equal("hello"))

			path, err := sessionlog.Resolve(types.NameIdentifier("20250101_000002"))
			Expect(err).NotTo(HaveOccurred())
			meta, err := sessionlog.ReadMetadata(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(meta.MessageCount).To(Equal(2))
			Expect(*meta.TotalTokens).To(Equal(5))
			Expect(meta.AccumulatedTotalTokens).To(Equal(5))
		})
	})

	Describe("a single tool call", func() {
		BeforeEach(func() {
			GinkgoT().Setenv("GOOSE_MODE", "auto")
			call := assistantToolCall("t1", "developer__shell", `{"command":"echo hi"}`)
			done := assistantText("Done")
			h = newHarness(GinkgoT(), []scriptedReply{
				{message: &call, usage: types.Usage{TotalTokens: 3}},
				{message: &done, usage: types.Usage{TotalTokens: 2}},
			})
		})

		It("pairs the response by id and finishes in four messages", func() {
			initial := userText("run echo")
			messages := append([]types.Message{initial}, run("run echo", nil)...)

			Expect(messages).To(HaveLen(4))
			Expect(messages[1].ToolRequestIDs()).To(Equal([]string{"t1"}))
			Expect(messages[2].Role).To(Equal(types.RoleUser))
			Expect(messages[2].ToolResponseIDs()).To(Equal([]string{"t1"}))
			Expect(messages[2].Content[0].ToolResponse.Content[0].Text.Text).To(ContainSubstring("hi"))
			Expect(messages[3].Content[0].Text.Text).To(Equal("Done"))
		})
	})

	Describe("a denied tool call in approve mode", func() {
		BeforeEach(func() {
			GinkgoT().Setenv("GOOSE_MODE", "approve")
			call := assistantToolCall("t1", "developer__shell", `{"command":"echo hi"}`)
			done := assistantText("understood")
			h = newHarness(GinkgoT(), []scriptedReply{
				{message: &call, usage: types.Usage{TotalTokens: 1}},
				{message: &done, usage: types.Usage{TotalTokens: 1}},
			})

			unsub := event.Subscribe(event.PermissionRequired, func(e event.Event) {
				data := e.Data.(event.PermissionRequiredData)
				h.agent.PermissionChecker().Respond(data.ID, permission.DecisionDenyOnce)
			})
			DeferCleanup(unsub)
		})

		It("records exactly one declined response and dispatches nothing", func() {
			messages := run("try it", nil)

			var responses []*types.ToolResponseContent
			for _, m := range messages {
				for _, c := range m.Content {
					if c.Kind == types.ContentToolResponse {
						responses = append(responses, c.ToolResponse)
					}
				}
			}
			Expect(responses).To(HaveLen(1))
			Expect(responses[0].ID).To(Equal("t1"))
			Expect(responses[0].Error.Message).To(Equal("The user has declined to run this tool"))
		})
	})

	Describe("the tool repetition cap", func() {
		BeforeEach(func() {
			GinkgoT().Setenv("GOOSE_MODE", "auto")
			same := func(id string) scriptedReply {
				msg := assistantToolCall(id, "developer__shell", `{"command":"echo same"}`)
				return scriptedReply{message: &msg, usage: types.Usage{TotalTokens: 1}}
			}
			done := assistantText("stopping")
			h = newHarness(GinkgoT(), []scriptedReply{
				same("t1"), same("t2"), same("t3"),
				{message: &done, usage: types.Usage{TotalTokens: 1}},
			}, WithToolMonitor(monitor.New(2)))
		})

		It("rejects the third identical call", func() {
			messages := run("repeat", nil)

			var errs []*types.ToolError
			var oks int
			for _, m := range messages {
				for _, c := range m.Content {
					if c.Kind != types.ContentToolResponse {
						continue
					}
					if c.ToolResponse.Error != nil {
						errs = append(errs, c.ToolResponse.Error)
					} else {
						oks++
					}
				}
			}
			Expect(oks).To(Equal(2))
			Expect(errs).To(HaveLen(1))
			Expect(errs[0].Message).To(Equal("Tool call rejected: exceeded maximum allowed repetitions"))
		})
	})

	Describe("context overflow", func() {
		BeforeEach(func() {
			h = newHarness(GinkgoT(), []scriptedReply{
				{err: &provider.Error{
					Kind:  provider.ErrContextLengthExceeded,
					Model: "mock-model",
					Err:   errors.New("prompt is too long"),
				}},
			})
		})

		It("yields exactly one ContextLengthExceeded message and stops", func() {
			messages := run("huge prompt", nil)

			Expect(messages).To(HaveLen(1))
			Expect(messages[0].Role).To(Equal(types.RoleAssistant))
			Expect(messages[0].Content).To(HaveLen(1))
			Expect(messages[0].Content[0].Kind).To(Equal(types.ContentContextLengthExceeded))
		})
	})
})
