package inference

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PromptConfig describes the company context and the assistant's behavioral
// rules. It is usually loaded from a YAML file.
type PromptConfig struct {
	AssistantName   string   `yaml:"assistant_name"`
	CompanyName     string   `yaml:"company_name"`
	SalesContact    string   `yaml:"sales_contact"`
	MaxReplyWords   int      `yaml:"max_reply_words"`
	CompanyInfo     string   `yaml:"company_info"`
	CompanyInfoFile string   `yaml:"company_info_file"`
	ExtraRules      []string `yaml:"extra_rules"`
}

func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		AssistantName: "TensAI Chat",
		CompanyName:   "our company",
		MaxReplyWords: 50,
	}
}

// LoadPromptConfig reads path over the defaults. A blank path returns the
// defaults. company_info_file is resolved relative to the working directory
// and its contents replace company_info.
func LoadPromptConfig(path string) (PromptConfig, error) {
	cfg := DefaultPromptConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return PromptConfig{}, fmt.Errorf("read prompt file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return PromptConfig{}, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	if f := strings.TrimSpace(cfg.CompanyInfoFile); f != "" {
		info, err := os.ReadFile(f)
		if err != nil {
			return PromptConfig{}, fmt.Errorf("read company info: %w", err)
		}
		cfg.CompanyInfo = string(info)
	}
	if cfg.MaxReplyWords <= 0 {
		cfg.MaxReplyWords = 50
	}
	return cfg, nil
}

// BuildSystemPrompt renders the fixed system instruction sent with every
// inference call.
func BuildSystemPrompt(cfg PromptConfig) string {
	name := strings.TrimSpace(cfg.AssistantName)
	if name == "" {
		name = "TensAI Chat"
	}
	company := strings.TrimSpace(cfg.CompanyName)
	if company == "" {
		company = "our company"
	}
	words := cfg.MaxReplyWords
	if words <= 0 {
		words = 50
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a helpful website chatbot for %s. Always follow these rules:\n\n", name, company)
	b.WriteString("1. Customer info first:\n")
	b.WriteString("   - Greet the user and ask for their Name and Mobile Number before answering any queries.\n")
	b.WriteString("   - Politely explain that these are required to assist them further.\n")
	b.WriteString("   - Optionally ask for Email and Organisation after Name and Mobile.\n\n")
	b.WriteString("2. Only proceed after details:\n")
	b.WriteString("   - Do not provide product information until Name and Mobile are received.\n")
	b.WriteString("   - If the user refuses, remind them: \"I need your Name and Mobile Number to assist you.\"\n\n")
	b.WriteString("3. Answering queries:\n")
	fmt.Fprintf(&b, "   - After collecting details, answer briefly (at most %d words) and stay relevant.\n", words)
	b.WriteString("   - If a query is unrelated, reply: \"I am a helpful assistant, please ask me something else.\"\n")
	if contact := strings.TrimSpace(cfg.SalesContact); contact != "" {
		fmt.Fprintf(&b, "   - If the user asks for a sales contact, give %s.\n", contact)
	}
	b.WriteString("\n4. Formatting:\n")
	b.WriteString("   - Do not use markdown formatting.\n")
	b.WriteString("   - Keep responses short, chat-friendly and professional.\n")
	for _, rule := range cfg.ExtraRules {
		if rule = strings.TrimSpace(rule); rule != "" {
			fmt.Fprintf(&b, "   - %s\n", rule)
		}
	}
	if info := strings.TrimSpace(cfg.CompanyInfo); info != "" {
		b.WriteString("\nCompany info and product details:\n")
		b.WriteString(info)
		b.WriteString("\n")
	}
	return b.String()
}
