package prompt

// Template text per provider, keyed by target. "generic" is the fallback
// for targets without a dedicated entry.
var watsonxTemplates = map[string]string{
	"generic": `You are a helpful AI that writes {{.Target}} code for multi-agent
workflows. The user provided a workflow spec in JSON below; output only
the finished code block with no explanations.

=== SPEC START ===
{{.SpecJSON}}
=== SPEC END ===
`,
	"crewai": `Act as a senior Python developer specialising in CrewAI agent teams.
Turn the JSON workflow below into an executable CrewAI script.

- Use snake_case function names.
- For every agent, create a CrewAI Agent.
- For every task, create a Task assigned to the correct agent.
- Express each edge through the dependent task's context list.
- Expose a main() function that runs the crew.

Output only the complete Python source code between triple backticks.

=== SPEC START ===
{{.SpecJSON}}
=== SPEC END ===
`,
	"crewai_flow": `Generate a CrewAI Flow pipeline from the workflow below.

Requirements:
1. Use the official CrewAI Flow API (Flow, @start, @listen).
2. Give every task its own flow method with a docstring.
3. Wrap the entry point in if __name__ == "__main__": main().

Output only the complete Python source code between triple backticks.

=== SPEC START ===
{{.SpecJSON}}
=== SPEC END ===
`,
	"langgraph": `Convert the workflow below into a LangGraph graph.

- Create one node per task.
- Use graph.add_edge() for every edge, starting at START and ending at END.
- Include the imports for langchain and langgraph.
- Expose a build_graph() function returning the compiled graph.

Output only the complete Python source code between triple backticks.

=== SPEC START ===
{{.SpecJSON}}
=== SPEC END ===
`,
	"react": `Produce a stand-alone ReAct style Python script from the workflow below.

- Implement a main loop that alternates reasoning and acting.
- Run the tasks in dependency order.
- Log every output variable to the console.

Output only the complete Python source code between triple backticks.

=== SPEC START ===
{{.SpecJSON}}
=== SPEC END ===
`,
	"beeai": `Write a BeeAI framework workflow in Python for the spec below.

- Add one agent per task with workflow.add_agent, in dependency order.
- Expose an async main() that runs the workflow.

Output only the complete Python source code between triple backticks.

=== SPEC START ===
{{.SpecJSON}}
=== SPEC END ===
`,
	"watsonx_orchestrate": `Emit an IBM watsonx Orchestrate agent definition (YAML) for the workflow
below. Follow the official native agent schema and add a flow document whose
steps carry depends_on lists.

Output only the YAML between triple backticks.

=== SPEC START ===
{{.SpecJSON}}
=== SPEC END ===
`,
}

// openai reuses every watsonx target template and only overrides the
// generic fallback.
var openaiTemplates = map[string]string{
	"generic": `You are ChatGPT generating {{.Target}} code from a JSON workflow.
Reply with a single fenced code block and nothing else.

=== SPEC START ===
{{.SpecJSON}}
=== SPEC END ===
`,
}
