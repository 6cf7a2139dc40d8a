package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"goodscommunity/internal/domain"
	"goodscommunity/internal/log"
	"goodscommunity/internal/notify"
	"goodscommunity/internal/session"
)

type NotificationHandler struct {
	Hub       *notify.Hub
	Sessions  session.Store
	Heartbeat time.Duration
	Log       *zap.Logger
}

type sseMessage struct {
	Event string
	ID    string
	Data  string
}

func writeEvent(w io.Writer, msg sseMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}

// Stream serves the notification feed as server-sent events. Every client
// gets the broadcast topic; a logged-in client also gets its private topic.
func (h *NotificationHandler) Stream(c *fiber.Ctx) error {
	topics := []string{notify.TopicBroadcast}
	var email string
	if sid := c.Cookies(sidCookie); sid != "" {
		if m, err := session.New(sid, h.Sessions).Member(c.UserContext()); err == nil && m != nil {
			email = m.Email
			topics = append(topics, notify.MemberTopic(m.Email))
		}
	}
	sub, err := h.Hub.Join(topics...)
	if errors.Is(err, notify.ErrTooManySubscribers) {
		log.Security(c, "sse.max_clients", map[string]any{"member": email})
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "Maximum number of notification connections reached",
		})
	}
	if err != nil {
		return fail(c, "sse.join", err)
	}
	log.Info(c, "sse.connect", map[string]any{"client_id": sub.ID, "member": email})

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	logger := h.Log
	if logger == nil {
		logger = zap.NewNop()
	}

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Close()
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		writeEvent(w, sseMessage{
			Event: "connected",
			Data:  fmt.Sprintf(`{"clientId":%q,"timestamp":%d}`, sub.ID, time.Now().UnixMilli()),
		})
		if err := w.Flush(); err != nil {
			return
		}
		for {
			select {
			case ev, open := <-sub.C:
				if !open {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					logger.Error("sse.marshal", zap.Error(err))
					continue
				}
				writeEvent(w, sseMessage{Event: "notification", ID: fmt.Sprint(ev.Timestamp), Data: string(data)})
			case <-ticker.C:
				writeEvent(w, sseMessage{Event: "heartbeat", Data: fmt.Sprintf(`{"timestamp":%d}`, time.Now().UnixMilli())})
			}
			if err := w.Flush(); err != nil {
				logger.Debug("sse.disconnect", zap.String("client_id", sub.ID))
				return
			}
		}
	}))
	return nil
}

// Publish broadcasts a generic event carrying the caller's attributes.
func (h *NotificationHandler) Publish(c *fiber.Ctx) error {
	attrs := map[string]any{}
	if err := c.BodyParser(&attrs); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	if len(attrs) == 0 {
		return badRequest(c, "body", "Notification is empty")
	}
	if m := memberOf(c); m != nil {
		attrs["from"] = m.Name
	}
	h.Hub.Broadcast(domain.NewEvent(domain.EventGeneric, attrs))
	log.Audit(c, "notify.publish", map[string]any{"by": memberEmail(c), "keys": len(attrs)})
	return ok(c, fiber.StatusAccepted, "Notification sent", nil)
}
