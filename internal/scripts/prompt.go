package scripts

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const systemPrompt = "You are an expert video script writer specializing in engaging, viral content."

func buildPrompt(topic string, duration int, style Style) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %d-second video script about %q in a %s style.\n\n", duration, topic, style.Tone)
	b.WriteString("Structure:\n")
	b.WriteString("- Hook (0-5 seconds): Grab attention immediately\n")
	fmt.Fprintf(&b, "- Main Content (5-%d seconds): Deliver value with clear points\n", duration-5)
	b.WriteString("- Call to Action (last 5 seconds): Encourage engagement\n\n")
	fmt.Fprintf(&b, "Style: %s\nTone: %s\n\n", style.Name, style.Tone)
	b.WriteString("Requirements:\n")
	b.WriteString("- Keep it engaging and conversational\n")
	b.WriteString("- Include specific, actionable points\n")
	b.WriteString("- End with a strong call to action\n")
	fmt.Fprintf(&b, "- Aim for approximately %d words\n", duration*2)
	b.WriteString("- Make it suitable for social media\n\n")
	b.WriteString("Format the response as a complete script with clear sections.")
	return b.String()
}

// renderTemplate produces the deterministic fallback script.
func renderTemplate(topic string, duration int, style Style) string {
	hook := fmt.Sprintf(style.Hook, topic)
	points := strings.Join([]string{
		fmt.Sprintf("Understanding %s is more important than you might think.", topic),
		fmt.Sprintf("Here are three key insights about %s:", topic),
		fmt.Sprintf("1. **First Point**: This is where the magic happens with %s.", topic),
		"2. **Second Point**: The impact is real and measurable.",
		"3. **Third Point**: This isn't just theory. It's practical advice you can use today.",
	}, "\n\n")
	cta := style.CallToAction
	words := countWords(hook) + countWords(points) + countWords(cta)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", cases.Title(language.English).String(topic))
	fmt.Fprintf(&b, "## Hook (0-5 seconds)\n%s\n\n", hook)
	fmt.Fprintf(&b, "## Main Content (5-%d seconds)\n%s\n\n", duration-5, points)
	fmt.Fprintf(&b, "## Call to Action (%d-%d seconds)\n%s\n\n", duration-5, duration, cta)
	b.WriteString("---\n")
	fmt.Fprintf(&b, "**Word Count**: %d words\n", words)
	fmt.Fprintf(&b, "**Estimated Duration**: %d seconds\n", duration)
	fmt.Fprintf(&b, "**Style**: %s\n", style.Name)
	fmt.Fprintf(&b, "**Tone**: %s\n", style.Tone)
	b.WriteString("**Generated with AI Content Studio Template Engine**")
	return b.String()
}
