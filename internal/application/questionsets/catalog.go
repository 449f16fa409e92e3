package questionsets

import (
	"fmt"

	"talentgate-backend/internal/domain"
)

func builtinEntries() []entry {
	return []entry{
		{set: QuestionSet{ID: "std-en-v1", Workflow: domain.KindStandard, Locale: "en", Questions: numbered("std", []Question{
			{Prompt: "Tell us about your most recent role and your main responsibilities."},
			{Prompt: "Describe a problem at work you solved recently. What did you do?"},
			{Prompt: "How do you prioritise when several tasks are urgent at the same time?"},
			{Prompt: "Tell us about a time you received difficult feedback."},
			{Prompt: "Why are you interested in this position?"},
			{Prompt: "What would you like to learn in the next year?"},
		})}},
		{set: QuestionSet{ID: "std-de-v1", Workflow: domain.KindStandard, Locale: "de", Questions: numbered("std", []Question{
			{Prompt: "Erzählen Sie uns von Ihrer letzten Position und Ihren Hauptaufgaben."},
			{Prompt: "Beschreiben Sie ein Problem, das Sie kürzlich gelöst haben."},
			{Prompt: "Wie priorisieren Sie, wenn mehrere Aufgaben gleichzeitig dringend sind?"},
			{Prompt: "Erzählen Sie von einem Moment, in dem Sie schwieriges Feedback erhalten haben."},
			{Prompt: "Warum interessieren Sie sich für diese Position?"},
			{Prompt: "Was möchten Sie im nächsten Jahr lernen?"},
		})}},
		{position: "DRIVER", set: QuestionSet{ID: "std-en-driver-v1", Workflow: domain.KindStandard, Locale: "en", Questions: numbered("drv", []Question{
			{Prompt: "Which vehicle classes are you licensed for, and since when?"},
			{Prompt: "Describe your daily pre-trip check."},
			{Prompt: "Tell us about a delivery that went wrong and how you handled it."},
			{Prompt: "How do you plan a route with several time windows?"},
			{Prompt: "Why do you want to drive for us?"},
		})}},
		{set: QuestionSet{ID: "adp-p1-en-v1", Workflow: domain.KindAdaptive, Phase: 1, Locale: "en", Questions: numbered("idn", identityQuestions())}},
		{set: QuestionSet{ID: "eng-en-v1", Workflow: "english", Locale: "en", Questions: numbered("eng", []Question{
			{Prompt: "Choose the correct form: She ___ to work every day. (go / goes / going)"},
			{Prompt: "Rewrite in the past tense: I take the early shift."},
			{Prompt: "What is the opposite of 'reliable'?"},
			{Prompt: "Write two sentences describing your last job."},
			{Prompt: "Correct the sentence: He don't like waiting."},
		})}},
	}
}

func identityQuestions() []Question {
	fields := []struct{ key, prompt string }{
		{"full_name", "What is your full name?"},
		{"current_role", "What is your current or most recent job title?"},
		{"years_experience", "How many years of work experience do you have?"},
		{"highest_education", "What is your highest completed education?"},
		{"primary_skills", "Which skills do you use most in your work?"},
		{"industry", "Which industry have you worked in most?"},
		{"team_size_managed", "How many people have you led or coordinated at once?"},
		{"preferred_work_style", "Describe the way you prefer to work."},
		{"availability", "When could you start?"},
		{"location", "Where are you based?"},
		{"languages", "Which languages do you speak?"},
		{"career_goal", "Where do you want your career to go in the next few years?"},
	}
	out := make([]Question, 0, len(fields))
	for _, f := range fields {
		out = append(out, Question{Prompt: f.prompt, FieldKey: f.key})
	}
	return out
}

func numbered(prefix string, qs []Question) []Question {
	for i := range qs {
		qs[i].Slot = i + 1
		qs[i].ID = fmt.Sprintf("%s-%02d", prefix, i+1)
		qs[i].Required = true
	}
	return qs
}

// Capability dimensions measured by phase-2 scenarios, in slot order.
var Dimensions = []string{
	"judgement",
	"communication",
	"ownership",
	"execution",
	"safety",
	"learning",
	"collaboration",
	"pressure",
}

var scenarioTemplates = []string{
	"%s You notice two instructions that contradict each other. What do you do first, and why?",
	"%s You have to explain a change to someone who disagrees with it. How do you approach the conversation?",
	"%s A task you own is about to miss its deadline. Walk us through your next hour.",
	"%s You are given a new process with little documentation. How do you get it done correctly?",
	"%s You see a colleague take a shortcut that could hurt someone. What do you do?",
	"%s You made a mistake that nobody noticed yet. What happens next?",
	"%s Another team needs your help while your own work is behind. How do you decide?",
	"%s Three urgent requests arrive at once and you can only handle one now. How do you choose?",
}

var classContext = map[string]string{
	domain.ClassFieldOperator:       "You are on site running daily operations.",
	domain.ClassTeamLead:            "You lead a team of eight on a busy shift.",
	domain.ClassTechnicalSpecialist: "You are the expert responsible for a critical system.",
	domain.ClassCoordinator:         "You coordinate schedules across several teams.",
	domain.ClassCustomerFacing:      "You are the main contact for an important customer.",
}

// Scenarios returns the phase-2 scenario set for a command class, truncated or
// cycled to count slots.
func Scenarios(class string, count int) ([]Question, error) {
	ctx, ok := classContext[class]
	if !ok {
		return nil, domain.ErrInvalidRequest.WithMessage(fmt.Sprintf("Unknown command class %q", class))
	}
	if count <= 0 {
		count = len(scenarioTemplates)
	}
	out := make([]Question, 0, count)
	for i := 0; i < count; i++ {
		t := scenarioTemplates[i%len(scenarioTemplates)]
		out = append(out, Question{
			ID:        fmt.Sprintf("scn-%s-%02d", class, i+1),
			Slot:      i + 1,
			Prompt:    fmt.Sprintf(t, ctx),
			Dimension: Dimensions[i%len(Dimensions)],
			Required:  true,
		})
	}
	return out, nil
}
