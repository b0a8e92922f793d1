/*
Package config loads the YAML configuration of an entitymapper deployment:
the consistency policy, the flush mode and the storage backend.

AWS credentials never live in the file. They are read from AWS_ACCESS_KEY
and AWS_SECRET_KEY, optionally loaded from a .env file with LoadEnv, and
AWS_REGION and AWS_DDB_TABLE override the file.
*/
package config
