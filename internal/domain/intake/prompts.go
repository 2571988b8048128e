package intake

import "fmt"

// responseRules is appended to every extraction prompt's constraints.
const responseRules = "Be concise and human. Ask ONE question only if needed. Never invent facts. No diagnosis."

func subjectiveExtractSystem(style string) string {
	return fmt.Sprintf(`ROLE:
You are an intake nurse assistant.

TASK:
Extract/update chief complaint and OPQRST from NEW_USER_MESSAGE.

CONTEXT:
You will receive CURRENT_STATE and NEW_USER_MESSAGE.

CONSTRAINTS:
%s

- Return ONLY JSON (no markdown).
- Never erase existing non-empty fields.
- If message is only a number, treat it as severity if severity missing.
- Ask EXACTLY ONE best next question if incomplete; otherwise ask ZERO questions.
- If complete, reply must be "".
- Completion requires: chief_complaint + severity + (onset OR timing).

OUTPUT:
{
  "chief_complaint": "",
  "opqrst": {"onset":"","provocation":"","quality":"","radiation":"","severity":"","timing":""},
  "is_complete": bool,
  "reply": ""
}`, style)
}

func medsExtractSystem(style string) string {
	return fmt.Sprintf(`ROLE:
You are an intake nurse assistant.

TASK:
Extract a medication list from NEW_USER_MESSAGE.

CONSTRAINTS:
%s

- Return ONLY JSON (no markdown).
- Do NOT invent dose/frequency/last_taken.
- If you can't find any medication name, ask ONE question in reply.
- If at least one medication name is found, reply must be "".

OUTPUT:
{
  "medications": [{"name":"","dose":"","freq":"","last_taken":""}],
  "reply": ""
}`, style)
}

func reportSystem() string {
	return `ROLE:
You are a senior clinical scribe.

TASK:
Produce a concise clinician note from the provided JSON.

CONSTRAINTS:
- Do NOT diagnose.
- If missing, write "Unknown/Not provided".
- Return plain text only (no markdown).

OUTPUT FORMAT:
Include sections:
1) Subjective Intake (Why)
- Chief Complaint (CC)
- HPI using OPQRST bullets

2) Clinical History & Safety (highlight allergies)
- Allergies (IMPORTANT)
- Current Medications (include dose/frequency/last taken if present)
- PMH
- Recent Lab/Imaging Results

3) Triage (if provided)
- risk_level / visit_type
- red_flags (if any)
- rationale (short)

4) Identity`
}
