/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"contract-run-go/internal/store"

	"go.uber.org/zap"
)

// UserInfo is the user projection printed by the command-line tools
type UserInfo struct {
	Id    string
	Name  string
	Email string
}

// ResolveUser finds a single user by id, or by email when the value contains "@"
func ResolveUser(ctx context.Context, users store.UserStore, idOrEmail string) (UserInfo, error) {
	if idOrEmail == "" {
		return UserInfo{}, fmt.Errorf("a user id or email is required")
	}

	lookup := users.GetUserById
	if strings.Contains(idOrEmail, "@") {
		lookup = users.GetUserByEmail
	}

	u, err := lookup(ctx, idOrEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UserInfo{}, fmt.Errorf("user %q not found: %w", idOrEmail, err)
		}
		return UserInfo{}, err
	}
	return UserInfo{Id: u.Id, Name: u.Name, Email: u.Email}, nil
}

// InitializeUsers returns the single matching user when filter is set,
// and every user otherwise.
func InitializeUsers(ctx context.Context, users store.UserStore, filter string) ([]UserInfo, error) {
	if filter != "" {
		zap.L().Info("Looking up user", zap.String("user", filter))
		u, err := ResolveUser(ctx, users, filter)
		if err != nil {
			return nil, err
		}
		return []UserInfo{u}, nil
	}

	all, err := users.GetUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}

	result := make([]UserInfo, 0, len(all))
	for _, u := range all {
		result = append(result, UserInfo{Id: u.Id, Name: u.Name, Email: u.Email})
	}

	zap.L().Info("Retrieved users", zap.Int("count", len(result)))
	return result, nil
}
