package coach

// ModeRules is one row of the prompt table: how a mode is detected and what
// the model is told while in it.
type ModeRules struct {
	Mode     Mode
	Keywords []string
	// WordCap is the advisory reply length passed to the model.
	WordCap  int
	Rules    []string
	Examples []string
}

const defaultWordCap = 110

// modeTable is in classification priority order.
var modeTable = []ModeRules{
	{
		Mode: ModeRepair,
		Keywords: []string{
			"fight", "fights", "fighting", "fought",
			"argue", "argued", "arguing", "argument", "arguments",
			"angry", "mad", "furious", "upset", "annoyed", "frustrated",
			"yelled", "shouted", "snapped", "blew up",
			"conflict", "tension", "tense",
			"sorry", "apologise", "apologize", "apology",
			"hurt", "ignoring", "silent treatment", "cold shoulder",
			"disappointed", "cried", "crying",
		},
		WordCap: 120,
		Rules: []string{
			"Follow the conflict protocol in order: 60s regulate (breath 4-4-8 x4); name 1-2 feelings from: angry, frustrated, tense, tired, overloaded, hurt, indifferent; turn the complaint into a request for the next 24-48h; draft one I-statement; pick one repair (15-min check-in, small action now, short walk or tea, gentle touch if welcome); confirm the next step.",
			"Pause and resume: if heat rises, agree a concrete return time (20-30 minutes), step away to regulate, then come back at that time and restart from the I-statement.",
			"Never ask open-ended emotional questions such as \"how does that make you feel?\". Offer named feelings to pick from instead.",
			"Do not assign blame to either person.",
		},
		Examples: []string{
			"- Breathe 4-4-8 four times before replying.",
			"- Say: \"I felt tense when plans changed. Can we check in for 15 minutes at 8?\"",
			"- If it heats up: \"I need 20 minutes, I'll come back at half past.\"",
		},
	},
	{
		Mode: ModePlanning,
		Keywords: []string{
			"plan", "plans", "planning", "organise", "organize", "schedule",
			"weekend", "date", "date night", "trip", "holiday", "vacation",
			"book", "booking", "reservation", "dinner", "lunch", "outing",
			"gift", "present", "surprise",
		},
		WordCap: defaultWordCap,
		Rules: []string{
			"Prefer prepared novelty over surprises: share the plan ahead so there is something to look forward to.",
			"Give at most three options, each with a time, a place and one detail that fits the profile.",
			"Check plans against the avoid-list and diet in the profile.",
		},
		Examples: []string{
			"- Saturday 10am: coastal walk, thermos of tea, back by lunch.",
		},
	},
	{
		Mode: ModeAffection,
		Keywords: []string{
			"love", "miss", "missing", "appreciate", "appreciation",
			"compliment", "romantic", "romance", "affection", "affectionate",
			"cuddle", "hug", "kiss", "sweet", "thank", "thanks", "grateful",
			"closer", "connect", "connection",
		},
		WordCap: 90,
		Rules: []string{
			"Suggest one specific, low-effort gesture that can happen today.",
			"Ground compliments in something concrete they actually did.",
		},
		Examples: []string{
			"- Send a two-line message naming one thing you admired today.",
		},
	},
	{
		Mode: ModeCelebrate,
		Keywords: []string{
			"celebrate", "celebrating", "celebration", "birthday", "anniversary",
			"promotion", "promoted", "congrats", "congratulations",
			"won", "passed", "graduated", "milestone", "achievement", "new job",
		},
		WordCap: 80,
		Rules: []string{
			"Match the good mood: keep it light and short.",
			"Suggest one way to mark the moment that fits the profile.",
		},
		Examples: []string{
			"- Pick up their favourite pastry on the way home and toast the news.",
		},
	},
}

var generalRules = ModeRules{
	Mode:    ModeGeneral,
	WordCap: defaultWordCap,
	Rules: []string{
		"If asked for gifts or gestures: suggest thoughtful, low-drama ideas consistent with the profile and memory.",
		"If asked how the partner would react: infer cautiously and give two safe options.",
	},
}

// RulesFor returns the prompt table row for mode, falling back to the
// general row for unknown modes.
func RulesFor(mode Mode) ModeRules {
	for _, rules := range modeTable {
		if rules.Mode == mode {
			return rules
		}
	}
	return generalRules
}

// WordCap returns the advisory reply length for mode.
func WordCap(mode Mode) int {
	return RulesFor(mode).WordCap
}
