// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
Package types holds the shared, dependency-free types of voiceflow.

# Contents

  - Error / ErrorCode: the pipeline error taxonomy (client input, authorization,
    upstream dependency, persistence, internal) with the HTTP status each code
    maps to.
  - Context helpers: WithCorrelationID / WithTenantID / WithUserID and their
    accessors.
*/
package types
