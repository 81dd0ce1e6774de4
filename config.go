// Copyright 2024 BINARY Members
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cellkv

import "github.com/cellkv/cellkv/pkg/logger"

// Config configures the index backing an Engine. Cell capacity (N=15)
// is a fixed invariant of the cell package, not a tunable here.
type Config struct {
	// SkipList Config: fan-out and promotion probability of each index
	// shard's skiplist.
	SkipListMaxLevel int
	SkipListP        float64

	// Logger overrides the package-default logger for this Engine. Nil
	// means use logger.GetLogger().
	Logger logger.Logger
}

var DefaultConfig = Config{
	SkipListMaxLevel: 9,
	SkipListP:        0.5,
}

func (c *Config) validate() error {
	if c.SkipListMaxLevel <= 0 {
		c.SkipListMaxLevel = DefaultConfig.SkipListMaxLevel
	}
	if c.SkipListP <= 0 {
		c.SkipListP = DefaultConfig.SkipListP
	}
	return nil
}

func (c *Config) loggerOrDefault() logger.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.GetLogger()
}
