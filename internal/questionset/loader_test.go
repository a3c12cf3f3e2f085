package questionset

import (
	"strings"
	"testing"

	"github.com/mquintela/falatest/internal/domain"
)

const sampleSet = `[
	{
		"questionId": 1,
		"questionType": 1,
		"promptText": "O que é isto?",
		"promptAudioPath": "audio/q1.mp3",
		"acceptedTranscripts": ["Ananás", "abacaxi"],
		"answers": [
			{"answerId": 1, "isCorrect": true, "label": "ananás", "imagePath": "img/ananas.png"},
			{"answerId": 2, "isCorrect": false, "label": "banana", "imagePath": "img/banana.png"}
		]
	},
	{
		"questionId": 1,
		"questionType": 1,
		"promptText": "duplicate id",
		"acceptedTranscripts": ["x"],
		"answers": [{"isCorrect": true, "label": "x"}]
	},
	{
		"questionType": 2,
		"promptText": "missing id, dropped"
	},
	{
		"questionId": 3,
		"questionType": 9,
		"promptText": "unknown type, dropped"
	},
	{
		"questionId": 4,
		"questionType": 4,
		"promptText": "Descreve a imagem",
		"imagePath": "img/open.png",
		"acceptedTranscripts": ["casa"]
	},
	{
		"questionId": 5,
		"questionType": 3,
		"promptText": "Cena",
		"acceptedTranscripts": ["sim"],
		"sceneConfig": {
			"audioPath": "audio/scene.mp3",
			"events": [{"imagePath": "img/a.png", "displayTime": "0:02", "displayType": "add"}]
		}
	},
	{
		"questionId": 6,
		"questionType": 1,
		"promptText": "two correct options, dropped",
		"answers": [
			{"isCorrect": true, "label": "a"},
			{"isCorrect": true, "label": "b"}
		]
	}
]`

func TestLoadDropsInvalidAndDeduplicates(t *testing.T) {
	qs, err := Load(strings.NewReader(sampleSet))
	if err != nil {
		t.Fatal(err)
	}

	if len(qs) != 3 {
		t.Fatalf("expected 3 questions, got %d: %+v", len(qs), qs)
	}
	if qs[0].ID != 1 || qs[1].ID != 4 || qs[2].ID != 5 {
		t.Fatalf("unexpected ids: %d %d %d", qs[0].ID, qs[1].ID, qs[2].ID)
	}
	// First occurrence wins on duplicate ids.
	if qs[0].PromptText != "O que é isto?" {
		t.Fatalf("duplicate replaced original: %q", qs[0].PromptText)
	}
}

func TestLoadNormalizesAcceptedTranscripts(t *testing.T) {
	qs, err := Load(strings.NewReader(sampleSet))
	if err != nil {
		t.Fatal(err)
	}
	got := qs[0].Accepted
	if len(got) != 2 || got[0] != "ananas" || got[1] != "abacaxi" {
		t.Fatalf("accepted transcripts not canonicalized: %v", got)
	}
}

func TestLoadSceneQuestion(t *testing.T) {
	qs, err := Load(strings.NewReader(sampleSet))
	if err != nil {
		t.Fatal(err)
	}
	var sceneQ *domain.Question
	for i := range qs {
		if qs[i].Type == domain.TypeScene {
			sceneQ = &qs[i]
		}
	}
	if sceneQ == nil {
		t.Fatal("scene question missing")
	}
	if sceneQ.Scene == nil || sceneQ.Scene.Audio != "audio/scene.mp3" || len(sceneQ.Scene.Events) != 1 {
		t.Fatalf("unexpected scene timeline: %+v", sceneQ.Scene)
	}
	if sceneQ.Scene.Events[0].At != 2 {
		t.Fatalf("timecode not parsed: %+v", sceneQ.Scene.Events[0])
	}
}

func TestLoadOptions(t *testing.T) {
	qs, err := Load(strings.NewReader(sampleSet))
	if err != nil {
		t.Fatal(err)
	}
	q := qs[0]
	if len(q.Options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(q.Options))
	}
	co := q.CorrectOption()
	if co == nil || co.Label != "ananás" {
		t.Fatalf("unexpected correct option: %+v", co)
	}
}

func TestLoadMalformedDocument(t *testing.T) {
	if _, err := Load(strings.NewReader("{not valid")); err == nil {
		t.Fatal("expected fatal error for undecodable document")
	}
}

func TestLoadEmptyDocument(t *testing.T) {
	qs, err := Load(strings.NewReader("[]"))
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 0 {
		t.Fatalf("expected no questions, got %d", len(qs))
	}
}
