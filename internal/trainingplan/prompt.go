package trainingplan

import (
	"fmt"
	"strings"
)

const systemPrompt = "你是一位专业的跑步训练教练。"

// buildPrompt renders the coaching prompt for the language model from the
// aggregated history.
func buildPrompt(history *HistoryData, planType, goal string) string {
	planTypeDesc := "长期计划1-6个月"
	if planType == "short" {
		planTypeDesc = "短期计划1-4周"
	}

	var sb strings.Builder
	sb.WriteString("你是一位专业的跑步训练教练。请根据以下用户数据，生成一份科学的个性化训练计划。\n\n")

	sb.WriteString("用户基本信息：\n")
	sb.WriteString(fmt.Sprintf("- 性别：%s\n", orUnknown(history.Gender)))
	sb.WriteString(fmt.Sprintf("- 年龄：%s\n", intOrUnknown(history.Age)))
	sb.WriteString(fmt.Sprintf("- 身高：%scm\n", floatOrUnknown(history.Height)))
	sb.WriteString(fmt.Sprintf("- 体重：%skg\n", floatOrUnknown(history.Weight)))
	sb.WriteString(fmt.Sprintf("- 体脂率：%s%%\n\n", floatOrUnknown(history.BodyFat)))

	sb.WriteString(fmt.Sprintf("历史运动数据（最近%d天）：\n", history.Days))
	sb.WriteString(fmt.Sprintf("- 训练次数：%d次\n", history.TotalExercises))
	sb.WriteString(fmt.Sprintf("- 平均心率：%.1fbpm\n", history.AvgHeartRate()))
	sb.WriteString(fmt.Sprintf("- 平均配速：%.2fmin/km\n", history.AvgPace()))
	sb.WriteString(fmt.Sprintf("- 平均卡路里：%.0fkcal\n\n", history.AvgCalories()))

	sb.WriteString(fmt.Sprintf("训练目标：%s\n", goal))
	sb.WriteString(fmt.Sprintf("计划类型：%s（%s）\n\n", planType, planTypeDesc))

	sb.WriteString("请生成一份详细的训练计划，包括：\n")
	sb.WriteString("1. 每周训练安排（训练日、休息日）\n")
	sb.WriteString("2. 每次训练的具体内容（热身、主训练、放松）\n")
	sb.WriteString("3. 训练强度（心率区间、配速区间）\n")
	sb.WriteString("4. 训练时长和距离\n")
	sb.WriteString("5. 训练建议和注意事项\n\n")

	sb.WriteString("请以JSON格式返回，包含以下字段：\n")
	sb.WriteString("- title: 训练计划标题\n")
	sb.WriteString("- duration: 计划时长（周）\n")
	sb.WriteString("- goal: 训练目标\n")
	sb.WriteString("- weekly_schedule: 每周训练安排（数组）\n")
	sb.WriteString("- daily_plans: 每日训练计划（数组）\n")
	sb.WriteString("- suggestions: 训练建议（数组）\n")

	return sb.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "未知"
	}
	return s
}

func intOrUnknown(i *int) string {
	if i == nil {
		return "未知"
	}
	return fmt.Sprintf("%d", *i)
}

func floatOrUnknown(f *float64) string {
	if f == nil {
		return "未知"
	}
	return fmt.Sprintf("%g", *f)
}
