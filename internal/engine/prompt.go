package engine

import "fmt"

const transcriptPrompt = `You are summarizing a video from its transcript.

Write:
- "summary": a concise prose summary of the video in 1-3 paragraphs.
- "notes": detailed study notes in markdown (headings and bullet points) covering the key ideas, facts and takeaways in the order they appear.

Respond with valid JSON only: {"summary": "...", "notes": "..."}

TRANSCRIPT:
%s`

const audioPrompt = `You are listening to the audio track of a video.

Write:
- "summary": a concise prose summary of the video in 1-3 paragraphs.
- "notes": detailed study notes in markdown (headings and bullet points) covering the key ideas, facts and takeaways in the order they appear.
- "transcript": a verbatim transcript of the speech, as plain text.

Respond with valid JSON only: {"summary": "...", "notes": "...", "transcript": "..."}`

// TranscriptPrompt builds the text-mode prompt. The transcript is cut to
// budget runes first; the cut is silent.
func TranscriptPrompt(transcript string, budget int) string {
	return fmt.Sprintf(transcriptPrompt, TruncateRunes(transcript, budget, ""))
}

// AudioPrompt returns the audio-mode instruction sent alongside the payload.
func AudioPrompt() string {
	return audioPrompt
}
