package presence

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestController_ConcurrentLifecycle(t *testing.T) {
	req := require.New(t)
	c, _ := newTestController(Options{})

	const clients = 200
	var g errgroup.Group
	for i := range clients {
		conn := ConnID(fmt.Sprintf("c%03d", i))
		room := RoomID(fmt.Sprintf("room-%d", i%7))
		g.Go(func() error {
			c.Connect(conn, "")
			if err := c.JoinRoom(conn, JoinRoomRequest{Username: string(conn), Room: room}); err != nil {
				return err
			}
			if err := c.SendMessage(conn, ChatMessage{User: string(conn), Text: "hi", Room: room}); err != nil {
				return err
			}
			if err := c.Typing(conn, TypingRequest{Username: string(conn), Room: room}); err != nil {
				return err
			}
			if err := c.JoinRandomChat(conn); err != nil {
				return err
			}
			if i%3 == 0 {
				c.Disconnect(conn)
			}
			return nil
		})
	}
	req.NoError(g.Wait())

	registered := c.Registry().IDs()
	req.Len(registered, clients-(clients+2)/3)

	waiting := c.Matchmaker().Waiting()
	req.LessOrEqual(len(waiting), 1)
	for _, conn := range waiting {
		req.True(c.Registry().Has(conn), "waiting %s is gone", conn)
	}

	for _, conn := range registered {
		partner, ok := c.Matchmaker().Partner(conn)
		if !ok {
			continue
		}
		back, ok := c.Matchmaker().Partner(partner)
		req.True(ok, "%s paired with %s but not the reverse", conn, partner)
		req.Equal(conn, back)
		req.True(c.Registry().Has(partner))

		s, err := c.Registry().Get(conn)
		req.NoError(err)
		req.True(c.Directory().IsPrivate(s.Room))
		req.ElementsMatch([]ConnID{conn, partner}, c.Directory().Members(s.Room))
	}

	for _, room := range c.Directory().ActiveRoomIDs() {
		members := c.Directory().Members(room)
		req.NotEmpty(members, "empty room %s is listed", room)
		for _, conn := range members {
			req.True(c.Registry().Has(conn), "%s in %s is not registered", conn, room)
		}
	}
}

func TestMatchmaker_ConcurrentEnqueuePairsEachOnce(t *testing.T) {
	req := require.New(t)
	m, registry, _, _ := newTestMatchmaker()

	const clients = 100
	conns := make([]ConnID, clients)
	for i := range conns {
		conns[i] = ConnID(fmt.Sprintf("c%03d", i))
		registry.Register(conns[i], "")
	}

	results := make(chan []Match, clients)
	var g errgroup.Group
	for _, conn := range conns {
		g.Go(func() error {
			results <- m.Enqueue(conn)
			return nil
		})
	}
	req.NoError(g.Wait())
	close(results)

	seen := make(map[ConnID]int)
	var matches []Match
	for batch := range results {
		matches = append(matches, batch...)
	}
	req.Len(matches, clients/2)
	req.Empty(m.Waiting())
	for _, match := range matches {
		req.NotEqual(match.First, match.Second)
		seen[match.First]++
		seen[match.Second]++
		partner, ok := m.Partner(match.First)
		req.True(ok)
		req.Equal(match.Second, partner)
	}
	req.Len(seen, clients)
	for conn, n := range seen {
		req.Equal(1, n, "%s paired %d times", conn, n)
	}
}
