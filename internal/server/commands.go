package server

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-manual/internal/protocol"
)

// dispatch applies a command from the presentation layer and builds the reply.
// Edits reply with the resulting state; queries reply with what they asked for.
func (s *Server) dispatch(msg *protocol.Message) (*protocol.Message, error) {
	if err := s.apply(msg); err != nil {
		return nil, err
	}

	switch msg.Type {
	case protocol.TypePing:
		return protocol.NewMessage(protocol.TypePong, time.Now().Unix())
	case protocol.TypeGetStats:
		return protocol.NewMessage(protocol.TypeStats, s.state.Stats())
	default:
		return protocol.NewMessage(protocol.TypeState, s.state.View())
	}
}

// apply performs the state edit a command asks for. Queries are no-ops here.
// A command missing its value is rejected before anything is touched.
func (s *Server) apply(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeSetPosition:
		pos, err := msg.GetPositionData()
		if err != nil {
			return fmt.Errorf("invalid %s: %w", msg.Type, err)
		}
		s.state.SetCoordinates(pos.X, pos.Y, pos.Z)

	case protocol.TypeSetGroundPoint:
		pt, err := msg.GetGroundPointData()
		if err != nil {
			return fmt.Errorf("invalid %s: %w", msg.Type, err)
		}
		s.state.SetGroundPoint(*pt.X, *pt.Y)

	case protocol.TypeSetAzimuth:
		angle, err := msg.GetAngleData()
		if err != nil {
			return fmt.Errorf("invalid %s: %w", msg.Type, err)
		}
		if angle.Signed {
			s.state.SetSignedAzimuth(*angle.Value)
		} else {
			s.state.SetWrappedAzimuth(*angle.Value)
		}

	case protocol.TypeSetElevation:
		angle, err := msg.GetAngleData()
		if err != nil {
			return fmt.Errorf("invalid %s: %w", msg.Type, err)
		}
		if angle.Signed {
			s.state.SetSignedElevation(*angle.Value)
		} else {
			s.state.SetWrappedElevation(*angle.Value)
		}

	case protocol.TypeSetContext:
		text, err := msg.GetTextData()
		if err != nil {
			return fmt.Errorf("invalid %s: %w", msg.Type, err)
		}
		s.state.SetContext(*text.Value)

	case protocol.TypeSetIdentity:
		text, err := msg.GetTextData()
		if err != nil {
			return fmt.Errorf("invalid %s: %w", msg.Type, err)
		}
		s.state.SetIdentity(*text.Value)

	case protocol.TypeSetLinked:
		flag, err := msg.GetFlagData()
		if err != nil {
			return fmt.Errorf("invalid %s: %w", msg.Type, err)
		}
		s.state.SetLinkable(*flag.Value)

	case protocol.TypeSetActive:
		flag, err := msg.GetFlagData()
		if err != nil {
			return fmt.Errorf("invalid %s: %w", msg.Type, err)
		}
		s.state.SetActive(*flag.Value)

	case protocol.TypeReset:
		s.state.Reset()

	case protocol.TypeUnlock:
		s.plugin.Unlock()

	case protocol.TypePing, protocol.TypeGetState, protocol.TypeGetStats:
		// Queries

	default:
		return fmt.Errorf("unknown command %q", msg.Type)
	}

	return nil
}
