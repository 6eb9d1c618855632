package client

import (
	"fmt"

	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/protocol"
)

// HandleEvent applies a gateway message and logs failures. It satisfies
// gateway.Handler.
func (s *Session) HandleEvent(msg *protocol.Message) {
	if err := s.Apply(msg); err != nil {
		s.logger.Warn("failed to apply event", "type", msg.Type, "error", err)
	}
}

// Apply updates the entity cache and message buffers from a dispatch
func (s *Session) Apply(msg *protocol.Message) error {
	if msg.Op != protocol.OpDispatch {
		return nil
	}

	switch msg.Type {
	case protocol.EventReady:
		var p protocol.ReadyPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		s.applyReady(&p)

	case protocol.EventServerCreate, protocol.EventServerUpdate:
		var sv models.Server
		if err := msg.Decode(&sv); err != nil {
			return err
		}
		s.store.PutServer(&sv)
		if msg.Type == protocol.EventServerCreate {
			s.store.AddMember(sv.ID, s.cfg.UserID)
		}

	case protocol.EventServerDelete:
		var p protocol.ServerDeletePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		s.store.RemoveServer(p.ID)

	case protocol.EventServerMemberAdd:
		var p protocol.ServerMemberAddPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		if p.User == nil {
			return fmt.Errorf("failed to decode %s: missing user", msg.Type)
		}
		s.store.PutUser(p.User)
		s.store.AddMember(p.ServerID, p.User.ID)

	case protocol.EventServerMemberRemove:
		var p protocol.ServerMemberRemovePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		s.store.RemoveMember(p.ServerID, p.UserID)

	case protocol.EventChannelCreate, protocol.EventChannelUpdate:
		var ch models.Channel
		if err := msg.Decode(&ch); err != nil {
			return err
		}
		s.store.PutChannel(&ch)

	case protocol.EventChannelDelete:
		var p protocol.ChannelDeletePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		s.store.RemoveChannel(p.ID)
		s.messages.Drop(p.ID)

	case protocol.EventMessageCreate:
		var p protocol.MessageCreatePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		if p.Message == nil {
			return fmt.Errorf("failed to decode %s: missing message", msg.Type)
		}
		if p.Author != nil {
			s.store.PutUser(p.Author)
		}
		s.messages.Add(p.Message)
		if p.ChannelID == s.messages.Active() {
			s.timer.MessagesLoaded()
		}

	case protocol.EventMessageUpdate:
		var m models.Message
		if err := msg.Decode(&m); err != nil {
			return err
		}
		// an update always marks the message edited
		if !m.IsEdited() {
			m.Edit(m.Content)
		}
		s.messages.Replace(&m)

	case protocol.EventMessageDelete:
		var p protocol.MessageDeletePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		s.messages.Remove(p.ChannelID, p.ID)

	case protocol.EventUserUpdate:
		var u models.User
		if err := msg.Decode(&u); err != nil {
			return err
		}
		s.store.PutUser(&u)

	case protocol.EventEmojiCreate:
		var e models.Emoji
		if err := msg.Decode(&e); err != nil {
			return err
		}
		s.store.PutEmoji(&e)

	default:
		s.logger.Debug("ignoring event", "type", msg.Type)
	}
	return nil
}

func (s *Session) applyReady(p *protocol.ReadyPayload) {
	if p.User != nil {
		s.store.PutUser(p.User)
	}
	for _, u := range p.Users {
		s.store.PutUser(u)
	}
	// servers first so channels get listed under them
	for _, sv := range p.Servers {
		s.store.PutServer(sv)
		s.store.AddMember(sv.ID, s.cfg.UserID)
	}
	for _, ch := range p.Channels {
		s.store.PutChannel(ch)
	}
	for _, m := range p.Members {
		s.store.AddMember(m.ServerID, m.UserID)
	}
	for _, e := range p.Emojis {
		s.store.PutEmoji(e)
	}
	s.logger.Info("session ready", "session_id", p.SessionID, "servers", len(p.Servers), "channels", len(p.Channels))
}
