//go:build ignore

// Package main generates a synthetic seed file for testing and demos.
// Usage: go run scripts/generate-seed.go -people 50 -conversations 30 -messages 500 -output testdata/seed.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

var (
	numPeople   = flag.Int("people", 50, "Number of people to generate")
	numConvs    = flag.Int("conversations", 30, "Number of conversations to generate")
	numMessages = flag.Int("messages", 500, "Number of messages to generate")
	outputPath  = flag.String("output", "testdata/seed.json", "Output file")
	seed        = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var firstNames = []string{
	"Ana", "Boris", "Chen", "Dina", "Emil", "Farah", "Goran", "Hana",
	"Ivan", "Jun", "Kira", "Liam", "Mira", "Noor", "Omar", "Priya",
	"Quinn", "Rosa", "Sam", "Tara", "Uma", "Viktor", "Wen", "Yara", "Zane",
}

var lastNames = []string{
	"Vasquez", "Chen", "Okafor", "Novak", "Haddad", "Kim", "Larsen",
	"Moreau", "Nakamura", "Osei", "Petrov", "Quispe", "Rossi", "Singh",
	"Tanaka", "Ueda", "Volkov", "Weber", "Yilmaz", "Zhang",
}

var topics = []string{
	"launch planning", "design review", "incident postmortem", "standup",
	"roadmap", "hiring", "onboarding", "infra migration", "release notes",
	"customer feedback", "budget", "offsite",
}

var phrases = []string{
	"let's sync on this tomorrow",
	"the deploy went out clean",
	"can someone review the draft",
	"pushing the deadline by a week",
	"metrics look good so far",
	"we should loop in the platform team",
	"updated the doc with the new numbers",
	"flagging this for the next standup",
	"tests are green on the branch",
	"the rollout is paused pending review",
}

type person struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Title       string `json:"title"`
	Active      bool   `json:"active"`
}

type conversation struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Topic        string   `json:"topic"`
	Participants []string `json:"participants"`
	Active       bool     `json:"active"`
}

type message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

type seedFile struct {
	People        []person       `json:"people"`
	Conversations []conversation `json:"conversations"`
	Messages      []message      `json:"messages"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	var out seedFile

	for i := 0; i < *numPeople; i++ {
		first := firstNames[rng.Intn(len(firstNames))]
		last := lastNames[rng.Intn(len(lastNames))]
		username := fmt.Sprintf("%s%s%d", string(first[0]+32), lowerASCII(last), i)
		out.People = append(out.People, person{
			ID:          fmt.Sprintf("u%d", i+1),
			Username:    username,
			DisplayName: first + " " + last,
			Email:       username + "@example.com",
			Title:       []string{"Engineer", "Designer", "PM", "Analyst"}[rng.Intn(4)],
			Active:      rng.Intn(10) != 0,
		})
	}

	for i := 0; i < *numConvs; i++ {
		topic := topics[rng.Intn(len(topics))]
		n := 2 + rng.Intn(5)
		seen := map[string]bool{}
		var participants []string
		for len(participants) < n && len(participants) < *numPeople {
			id := fmt.Sprintf("u%d", 1+rng.Intn(*numPeople))
			if !seen[id] {
				seen[id] = true
				participants = append(participants, id)
			}
		}
		out.Conversations = append(out.Conversations, conversation{
			ID:           fmt.Sprintf("c%d", i+1),
			Title:        fmt.Sprintf("%s %d", topic, i+1),
			Topic:        topic,
			Participants: participants,
			Active:       rng.Intn(10) != 0,
		})
	}

	base := time.Now().Add(-30 * 24 * time.Hour)
	for i := 0; i < *numMessages; i++ {
		conv := out.Conversations[rng.Intn(len(out.Conversations))]
		sender := conv.Participants[rng.Intn(len(conv.Participants))]
		out.Messages = append(out.Messages, message{
			ID:             fmt.Sprintf("m%d", i+1),
			ConversationID: conv.ID,
			SenderID:       sender,
			Body:           phrases[rng.Intn(len(phrases))],
			SentAt:         base.Add(time.Duration(i) * 7 * time.Minute),
		})
	}

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outputPath, data, 0644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s: %d people, %d conversations, %d messages\n",
		*outputPath, len(out.People), len(out.Conversations), len(out.Messages))
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
