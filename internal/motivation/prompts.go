package motivation

import (
	"fmt"
	"sort"
	"strings"
)

// Default prompt generators for the built-in motivation types. Each consults
// the type-specific signal context and falls back to a generic instruction
// when that context is empty.

func generateResolveUnfinishedPrompt(ctx TaskContext) (string, error) {
	failed := ctx.System.FailedWorkItems
	if len(failed) == 0 {
		return "Review recent system activity and identify any incomplete or failed tasks that should be revisited and completed.", nil
	}

	latest := failed[0]
	var b strings.Builder
	b.WriteString("AUTONOMOUS TASK: Resolve Unfinished Work\n\n")
	fmt.Fprintf(&b, "There are %d failed or cancelled tasks in the last 24 hours.\n", len(failed))
	b.WriteString("The most recent failure was:\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", truncate(latest.Goal, 200))
	fmt.Fprintf(&b, "Status: %s\n", latest.Status)
	fmt.Fprintf(&b, "Depth: %d\n", latest.Depth)
	fmt.Fprintf(&b, "Failed at: %s\n\n", latest.UpdatedAt.Format("2006-01-02 15:04:05 UTC"))
	b.WriteString(`Analyze this failure and either:
1. Retry the task with an improved approach
2. Break it down into smaller, more manageable subtasks
3. Identify why it failed and address the root cause
4. Determine if the goal is still relevant and should be pursued

Focus on learning from the failure and improving success probability.`)
	return b.String(), nil
}

func generateRefineConfidencePrompt(ctx TaskContext) (string, error) {
	var b strings.Builder
	b.WriteString("AUTONOMOUS TASK: Improve Output Confidence\n\n")
	if ctx.System.LowConfidence > 0 {
		fmt.Fprintf(&b, "%d recent outputs were marked with low confidence or uncertainty.\n\n", ctx.System.LowConfidence)
	} else {
		b.WriteString("Recent outputs or decisions were marked with low confidence or uncertainty.\n\n")
	}
	b.WriteString(`Please:
1. Review recent interactions for uncertainty indicators
2. Identify specific areas where confidence was low
3. Research or analyze these areas more thoroughly
4. Provide more definitive conclusions or recommendations
5. If uncertainty persists, document what additional information is needed

Focus on converting uncertain or tentative responses into confident, well-supported conclusions.`)
	return b.String(), nil
}

func generateExploreFailurePrompt(ctx TaskContext) (string, error) {
	var b strings.Builder
	b.WriteString("AUTONOMOUS TASK: Investigate System Failures\n\n")
	if len(ctx.System.ToolFailures) > 0 {
		b.WriteString("Tools with repeated failures in the last hour:\n")
		names := make([]string, 0, len(ctx.System.ToolFailures))
		for name := range ctx.System.ToolFailures {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %d failures\n", name, ctx.System.ToolFailures[name])
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Repeated tool failures or execution problems were detected recently.\n\n")
	}
	b.WriteString(`Please:
1. Analyze recent tool execution logs for failure patterns
2. Identify which tools are failing most frequently
3. Determine root causes (permissions, resources, configuration)
4. Test alternative approaches or tools for the same objectives
5. Document findings and recommend improvements

Focus on improving system reliability and finding more robust execution strategies.`)
	return b.String(), nil
}

func generateCoveragePrompt(ctx TaskContext) (string, error) {
	goals := ctx.System.RecentGoals
	var b strings.Builder
	b.WriteString("AUTONOMOUS TASK: Expand Task Coverage\n\n")
	fmt.Fprintf(&b, "Recent activity analysis shows %d completed tasks in the last 12 hours.\n\n", len(goals))
	if len(goals) > 0 {
		b.WriteString("Recent completed goals:\n")
		for i, goal := range goals {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "- %s\n", truncate(goal, 150))
		}
		b.WriteString("\n")
	}
	b.WriteString(`Please:
1. Identify underexplored domains or task types
2. Generate diverse tasks in areas not recently addressed
3. Explore capabilities or tools that haven't been fully utilized
4. Create experimental or research tasks to expand knowledge
5. Focus on areas that could provide new insights

Aim for diversity and exploration rather than repeating similar tasks.`)
	return b.String(), nil
}

func generateRevisitThoughtsPrompt(ctx TaskContext) (string, error) {
	stale := ctx.System.StaleWorkItems
	if len(stale) == 0 {
		return "Review long-pending tasks and thought processes to identify opportunities for completion or insights.", nil
	}

	oldest := stale[0]
	var b strings.Builder
	b.WriteString("AUTONOMOUS TASK: Revisit Stale Work\n\n")
	fmt.Fprintf(&b, "Found %d work items that haven't been updated in over 48 hours.\n\n", len(stale))
	b.WriteString("Oldest pending item:\n")
	fmt.Fprintf(&b, "Goal: %s\n", truncate(oldest.Goal, 200))
	fmt.Fprintf(&b, "Status: %s\n", oldest.Status)
	fmt.Fprintf(&b, "Depth: %d\n\n", oldest.Depth)
	b.WriteString(`Please:
1. Review this long-pending item and assess its current relevance
2. Determine if it can be completed with current capabilities
3. Look for new insights or approaches that weren't available before
4. Either complete it, break it down further, or decide if it should be abandoned
5. Apply any new learning or context developed since it was created

Focus on extracting value from work that has been sitting idle.`)
	return b.String(), nil
}

func generateIdleExplorationPrompt(ctx TaskContext) (string, error) {
	var b strings.Builder
	b.WriteString("AUTONOMOUS TASK: Idle Exploration & Self-Discovery\n\n")
	if ctx.System.Activity != nil {
		fmt.Fprintf(&b, "Current system state: %d active agents, %d recent activities.\n\n",
			ctx.System.Activity.ActiveAgents, ctx.System.Activity.RecentEvents)
	}
	b.WriteString(`Since the system is relatively idle, engage in exploratory activities:

1. Self-Assessment: analyze capabilities, limitations and performance patterns
2. Environment Discovery: explore available tools, data sources and system capabilities
3. Knowledge Synthesis: connect insights from previous tasks in new ways
4. Experimental Tasks: try novel approaches or combinations of existing capabilities
5. Meta-Learning: reflect on learning patterns and identify areas for improvement

Focus on discovery, learning and creative exploration rather than routine tasks.`)
	return b.String(), nil
}

// fallbackPrompt returns a generic type-specific instruction used when a
// generator fails or renders nothing.
func fallbackPrompt(motivationType string) string {
	switch motivationType {
	case TypeResolveUnfinishedTasks:
		return "Review and retry any recently failed or incomplete tasks, learning from previous failures."
	case TypeRefineLowConfidence:
		return "Review recent low-confidence outputs and work toward more definitive, well-supported conclusions."
	case TypeExploreRecentFailure:
		return "Investigate recent execution failures, identify root causes and recommend improvements."
	case TypeMaximizeCoverage:
		return "Explore new task domains and capabilities that haven't been recently utilized to maximize system coverage."
	case TypeRevisitOldThoughts:
		return "Review and progress long-pending thoughts and tasks that may have been overlooked."
	case TypeIdleExploration:
		return "Engage in self-directed exploration and learning activities to discover new insights and capabilities."
	default:
		return fmt.Sprintf("Act on the %s motivation: review relevant system state and take one concrete productive step.", motivationType)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
