package scripts

import "sort"

// Style names.
const (
	StyleProfessional = "professional"
	StyleCasual       = "casual"
	StyleEducational  = "educational"
	StyleEntertaining = "entertaining"
)

// Style shapes the prompt and the template fallback.
type Style struct {
	Name         string   `json:"name"`
	Hook         string   `json:"hook"`
	Structure    []string `json:"structure"`
	Tone         string   `json:"tone"`
	CallToAction string   `json:"call_to_action"`
}

var styles = map[string]Style{
	StyleProfessional: {
		Name:         StyleProfessional,
		Hook:         "Let's explore %s and discover how it can transform your approach.",
		Structure:    []string{"hook", "main_points", "call_to_action"},
		Tone:         "professional and informative",
		CallToAction: "What are your thoughts on this? Share your experience in the comments below, and don't forget to follow for more insights like this.",
	},
	StyleCasual: {
		Name:         StyleCasual,
		Hook:         "Hey there! Today we're diving into %s, and trust me, you'll want to stick around for this.",
		Structure:    []string{"hook", "personal_story", "main_points", "call_to_action"},
		Tone:         "friendly and conversational",
		CallToAction: "So what do you think? Drop a comment and let me know! Hit that follow button for more content like this.",
	},
	StyleEducational: {
		Name:         StyleEducational,
		Hook:         "Understanding %s is crucial for success. Let me break it down for you.",
		Structure:    []string{"hook", "definition", "examples", "practical_tips", "call_to_action"},
		Tone:         "educational and clear",
		CallToAction: "I'd love to hear your thoughts! Comment below with your questions, and subscribe for more educational content.",
	},
	StyleEntertaining: {
		Name:         StyleEntertaining,
		Hook:         "Buckle up! We're about to explore %s in a way you've never seen before.",
		Structure:    []string{"hook", "story", "humor", "main_points", "call_to_action"},
		Tone:         "entertaining and engaging",
		CallToAction: "That was fun! What's your take? Comment below, follow for more entertainment, and I'll see you in the next video!",
	},
}

// LookupStyle returns the named style, falling back to professional.
func LookupStyle(name string) Style {
	if s, ok := styles[name]; ok {
		return s
	}
	return styles[StyleProfessional]
}

// KnownStyle reports whether name is a defined style.
func KnownStyle(name string) bool {
	_, ok := styles[name]
	return ok
}

// StyleNames lists the defined styles alphabetically.
func StyleNames() []string {
	names := make([]string, 0, len(styles))
	for name := range styles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
