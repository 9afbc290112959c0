package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ticket_engine/internal/model"
)

var ErrNoAccounts = errors.New("no accounts configured")

// LoadAccounts 读取账号列表：优先使用 ACCOUNTS 环境变量（email:password:proxy,...），
// 否则读取 JSON 文件。max > 0 时截断到前 max 个。
func LoadAccounts(path, inline string, max int) ([]model.Account, error) {
	var (
		accounts []model.Account
		err      error
	)
	if strings.TrimSpace(inline) != "" {
		accounts, err = ParseInlineAccounts(inline)
	} else {
		accounts, err = readAccountsFile(path)
	}
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	if max > 0 && len(accounts) > max {
		accounts = accounts[:max]
	}
	return normalizeAccounts(accounts)
}

func readAccountsFile(path string) ([]model.Account, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("accounts file not found: %s", path)
		}
		return nil, err
	}
	var accounts []model.Account
	if err := json.Unmarshal(b, &accounts); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}
	return accounts, nil
}

// ParseInlineAccounts 解析 "email:password[:proxy]"，代理本身可以包含冒号。
func ParseInlineAccounts(v string) ([]model.Account, error) {
	var out []model.Account
	for _, item := range SplitList(v) {
		parts := strings.Split(item, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid account entry %q", item)
		}
		acc := model.Account{Email: parts[0], Password: parts[1]}
		if len(parts) > 2 {
			acc.Proxy = strings.Join(parts[2:], ":")
		}
		out = append(out, acc)
	}
	return out, nil
}

func normalizeAccounts(in []model.Account) ([]model.Account, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.Account, 0, len(in))
	for i, acc := range in {
		acc.Email = strings.TrimSpace(acc.Email)
		acc.Proxy = strings.TrimSpace(acc.Proxy)
		if acc.Email == "" {
			return nil, fmt.Errorf("account #%d: email is required", i+1)
		}
		if acc.Password == "" {
			return nil, fmt.Errorf("account #%d: password is required", i+1)
		}
		acc.ID = strings.TrimSpace(acc.ID)
		if acc.ID == "" {
			acc.ID = strconv.Itoa(i + 1)
		}
		if strings.ContainsAny(acc.ID, `/\`) || strings.Contains(acc.ID, "..") {
			return nil, fmt.Errorf("account #%d: invalid id %q", i+1, acc.ID)
		}
		if _, dup := seen[acc.ID]; dup {
			return nil, fmt.Errorf("duplicate account id %q", acc.ID)
		}
		seen[acc.ID] = struct{}{}
		out = append(out, acc)
	}
	return out, nil
}
