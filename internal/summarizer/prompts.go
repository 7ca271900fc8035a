package summarizer

// NoNewsMarker is the model's answer when nothing in the window is worth reporting.
const NoNewsMarker = "[NO SIGNIFICANT NEWS]"

// emptyMarkers are accepted as "nothing to report" answers.
var emptyMarkers = []string{NoNewsMarker, "[NO MESSAGES TO ANALYZE]", "[NOTHING OF NOTE]"}

// SystemInstruction frames every summarization call.
const SystemInstruction = `You write the daily news digest of a Discord community. You read raw chat messages and report what happened, with credit to the people involved. You are factual, concise and never hyperbolic.`

// newsPromptHeader precedes the formatted messages of one chunk.
const newsPromptHeader = `Respond with ONLY a JSON array of news items. No introduction, no explanation, no markdown.
If there are no significant news items, respond with exactly "[NO SIGNIFICANT NEWS]".

Each item has this shape:
{
  "title": "Short headline",
  "mainText": "One or two sentences about the topic, ending with a colon if media follows:",
  "mainFile": "Direct attachment URL(s), comma separated, or empty",
  "messageLink": "Jump link of the message that best represents the topic",
  "subTopics": [
    {"text": "A related detail, example or reaction", "file": "Attachment URL(s) or empty", "messageLink": "Jump link"}
  ]
}

Focus on:
1. New features, tools or releases that were announced
2. Demos or media that drew many reactions or replies
3. What people were most excited about or discussed the most
4. Notable achievements and important community announcements
5. Problems and negative news, stated plainly

Requirements:
1. Every item and sub topic needs a message link taken from the messages below
2. Include the related media of a topic; never share the same attachment twice
3. Usernames in bold with ** and credit opinions to the person who gave them ("**Draken** felt...")
4. Do not repeat items and do not leave required fields empty
5. Do not favour the first messages; read the whole conversation

Here are the messages to analyze:

`

// newsPromptFooter closes the prompt of one chunk.
const newsPromptFooter = `
Remember: respond with ONLY the JSON array or "[NO SIGNIFICANT NEWS]".`

// previousItemsPreamble introduces the items found in earlier chunks of the same window.
const previousItemsPreamble = `Earlier parts of this conversation already produced these items:
%s

DO NOT repeat any of these topics, ideas or media. Only report NEW and DIFFERENT topics from the messages below.
If every significant topic is already covered, respond with "[NO SIGNIFICANT NEWS]".

`

// priorSummaryPreamble gives the previous window's summary for continuity.
const priorSummaryPreamble = `For context, the previous summary of this channel reported:
%s

Only mention those topics again when the messages below add a meaningful new development.

`

// reducePrompt merges the item lists of several chunks of one window.
const reducePrompt = `You are given several JSON arrays of news items, each produced from a consecutive part of the same day of conversation.
Merge them into a single JSON array:
- combine items that describe the same topic, keeping all their media and sub topics
- keep every distinct topic; the result must include content from every part
- keep the exact item structure (title, mainText, mainFile, messageLink, subTopics)

Respond with ONLY the JSON array.

%s`

// reducePart is one chunk's list inside reducePrompt.
const reducePart = "Part %d:\n%s\n\n"

// digestPrompt selects the highlights across channels for the daily digest.
const digestPrompt = `You are given the news items of several Discord channels for the same day, grouped by channel.
Select the 3 to 5 most interesting items overall and return them as a single JSON array.
Keep each chosen item in exactly the same structure as in the input.
If nothing is interesting, respond with "[NO SIGNIFICANT NEWS]". Otherwise respond with ONLY the JSON array.

%s`

// shortPrompt asks for the header message of a channel summary.
const shortPrompt = `Create exactly 3 bullet points summarizing the key developments below. Strict format:
1. The first line MUST BE EXACTLY: %s
2. Then three lines, each starting with "• ", each summarizing one main topic on a single line
3. Bold the most important finding of each line with **
4. Prefer topics that are useful to people who missed the conversation
Output nothing else.

Full summary to work from:
%s`

// shortCountLine is the mandatory first line of a short summary.
const shortCountLine = "📨 __%d messages sent__"
